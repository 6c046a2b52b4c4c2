// Package sampler draws uniform random positions from a node's cross-segment
// neighbor sequence.
package sampler

import (
	"fmt"

	bgerrors "github.com/23skdu/bigraph/internal/errors"
)

// RandomSource supplies the draws. *math/rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
}

// Parts is a frozen, ordered neighbor sequence split into per-segment
// slices. Parts[0] is the first part in logical order.
type Parts[T any] [][]T

// Len is the total number of elements.
func (p Parts[T]) Len() int {
	n := 0
	for _, part := range p {
		n += len(part)
	}
	return n
}

// Locate maps a logical position to a (part, offset) pair by walking parts
// in order and subtracting each part's length.
func (p Parts[T]) Locate(pos int) (part, offset int) {
	for i, s := range p {
		if pos < len(s) {
			return i, pos
		}
		pos -= len(s)
	}
	panic(bgerrors.NewInvariantError("locate",
		fmt.Sprintf("position out of range by %d", pos)))
}

// At returns the element at logical position pos.
func (p Parts[T]) At(pos int) T {
	i, off := p.Locate(pos)
	return p[i][off]
}

// Sample appends k independent uniform draws (with replacement) from parts
// to dst and returns it. Draw i consumes the i-th rng.Intn call and
// produces the i-th appended value. An empty sequence yields no values and
// makes no rng calls. A negative k panics.
func Sample[T any](parts Parts[T], k int, rng RandomSource, dst []T) []T {
	if k < 0 {
		panic(bgerrors.NewInvariantError("sample",
			fmt.Sprintf("sample count must be >= 0, got %d", k)))
	}
	d := parts.Len()
	if d == 0 || k == 0 {
		return dst
	}
	for i := 0; i < k; i++ {
		dst = append(dst, parts.At(rng.Intn(d)))
	}
	return dst
}
