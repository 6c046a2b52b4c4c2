package segment

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/23skdu/bigraph/internal/codec"
)

// nodeEntry holds one node's neighbor array within a segment.
//
// The writer stores the array before bumping degree; readers load degree
// first and then the array, so every slot below the observed degree is
// populated in whatever array they end up with.
type nodeEntry struct {
	id     codec.NodeID
	degree atomic.Int32
	edges  atomic.Pointer[[]codec.EncodedNeighbor]
}

// view returns the populated prefix of the entry's array.
func (e *nodeEntry) view() []codec.EncodedNeighbor {
	d := int(e.degree.Load())
	if d == 0 {
		return nil
	}
	arr := *e.edges.Load()
	return arr[:d:d]
}

type slotArray struct {
	slots []atomic.Pointer[nodeEntry]
	mask  uint64
}

// nodeTable is an open-addressed, linear-probing map from node id to entry.
// Only the writer inserts; lookups never lock. Slots go from nil to a fully
// built entry exactly once, and resizes publish a complete new slot array.
type nodeTable struct {
	table atomic.Pointer[slotArray]
	size  atomic.Int64
}

const (
	minTableSize = 8
	// Resize when size exceeds 3/4 of the slots.
	loadNumerator   = 3
	loadDenominator = 4
)

func newNodeTable(expectedNodes int) *nodeTable {
	n := minTableSize
	for n*loadNumerator/loadDenominator < expectedNodes {
		n <<= 1
	}
	t := &nodeTable{}
	t.table.Store(newSlotArray(n))
	return t
}

func newSlotArray(n int) *slotArray {
	return &slotArray{
		slots: make([]atomic.Pointer[nodeEntry], n),
		mask:  uint64(n - 1),
	}
}

func hashNode(id codec.NodeID) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return xxhash.Sum64(b[:])
}

// get returns the entry for id, or nil.
func (t *nodeTable) get(id codec.NodeID) *nodeEntry {
	sa := t.table.Load()
	for i := hashNode(id) & sa.mask; ; i = (i + 1) & sa.mask {
		e := sa.slots[i].Load()
		if e == nil {
			return nil
		}
		if e.id == id {
			return e
		}
	}
}

// insert publishes a fully built entry. The caller guarantees e.id is absent.
func (t *nodeTable) insert(e *nodeEntry) {
	sa := t.table.Load()
	if (t.size.Load()+1)*loadDenominator > int64(len(sa.slots))*loadNumerator {
		sa = t.grow(sa)
	}
	place(sa, e)
	t.size.Add(1)
}

func (t *nodeTable) grow(old *slotArray) *slotArray {
	sa := newSlotArray(len(old.slots) * 2)
	for i := range old.slots {
		if e := old.slots[i].Load(); e != nil {
			place(sa, e)
		}
	}
	t.table.Store(sa)
	return sa
}

func place(sa *slotArray, e *nodeEntry) {
	for i := hashNode(e.id) & sa.mask; ; i = (i + 1) & sa.mask {
		if sa.slots[i].Load() == nil {
			sa.slots[i].Store(e)
			return
		}
	}
}

// count is the number of distinct nodes.
func (t *nodeTable) count() int {
	return int(t.size.Load())
}

// forEach visits every entry present when the call starts loading slots.
func (t *nodeTable) forEach(fn func(e *nodeEntry) bool) {
	sa := t.table.Load()
	for i := range sa.slots {
		if e := sa.slots[i].Load(); e != nil {
			if !fn(e) {
				return
			}
		}
	}
}

var (
	entrySize = int64(unsafe.Sizeof(nodeEntry{}))
	slotSize  = int64(unsafe.Sizeof(atomic.Pointer[nodeEntry]{}))
)

// overheadBytes estimates the table's own footprint, excluding neighbor
// arrays.
func (t *nodeTable) overheadBytes() int64 {
	sa := t.table.Load()
	return int64(len(sa.slots))*slotSize + t.size.Load()*entrySize
}
