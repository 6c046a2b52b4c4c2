// Package pool recycles scratch bitmaps used to count distinct node ids.
package pool

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// BitmapPool manages a pool of *roaring64.Bitmap objects to reduce GC pressure.
type BitmapPool struct {
	pool sync.Pool
}

// NewBitmapPool creates an empty pool.
func NewBitmapPool() *BitmapPool {
	return &BitmapPool{
		pool: sync.Pool{
			New: func() any {
				return roaring64.New()
			},
		},
	}
}

var globalBitmapPool = NewBitmapPool()

// GetBitmap retrieves an empty bitmap from the global pool.
func GetBitmap() *roaring64.Bitmap {
	return globalBitmapPool.Get()
}

// PutBitmap clears bm and returns it to the global pool.
func PutBitmap(bm *roaring64.Bitmap) {
	globalBitmapPool.Put(bm)
}

// Get retrieves an empty bitmap from the pool.
func (p *BitmapPool) Get() *roaring64.Bitmap {
	return p.pool.Get().(*roaring64.Bitmap)
}

// Put clears bm and returns it to the pool. Nil is ignored.
func (p *BitmapPool) Put(bm *roaring64.Bitmap) {
	if bm != nil {
		bm.Clear()
		p.pool.Put(bm)
	}
}
