package segment

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/23skdu/bigraph/internal/codec"
	bgerrors "github.com/23skdu/bigraph/internal/errors"
)

// Side selects the left- or right-indexed half of the graph.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

// SideConfig sizes one side of every segment.
type SideConfig struct {
	// ExpectedNumNodes presizes each segment's node table.
	ExpectedNumNodes int
	GrowthPolicy
}

// Validate checks the side parameters.
func (c SideConfig) Validate() error {
	if c.ExpectedNumNodes < 0 {
		return bgerrors.NewConfigurationError("side_config",
			fmt.Sprintf("expected num nodes must be >= 0, got %d", c.ExpectedNumNodes))
	}
	return c.GrowthPolicy.Validate()
}

const encodedSize = int64(unsafe.Sizeof(codec.EncodedNeighbor(0)))

// Adjacency is one side of a segment: an append-only neighbor array per node.
// A single writer appends; any number of readers call Degree/View
// concurrently without locking.
type Adjacency struct {
	side   Side
	policy GrowthPolicy
	nodes  *nodeTable

	// arrayBytes tracks allocated neighbor capacity for memory estimates.
	arrayBytes atomic.Int64
	growths    atomic.Int64
}

// NewAdjacency builds an empty adjacency for side. cfg must be valid. A
// policy that is already compiled is shared as is.
func NewAdjacency(side Side, cfg SideConfig) *Adjacency {
	policy := cfg.GrowthPolicy
	if !policy.compiled() {
		policy = policy.compile()
	}
	return &Adjacency{
		side:   side,
		policy: policy,
		nodes:  newNodeTable(cfg.ExpectedNumNodes),
	}
}

// Side reports which half of the graph this adjacency indexes.
func (a *Adjacency) Side() Side { return a.side }

// Append adds v to node's array. It reports the new array capacity when the
// append had to grow an existing array, or 0 otherwise. Writer only.
func (a *Adjacency) Append(node codec.NodeID, v codec.EncodedNeighbor) (grewTo int) {
	e := a.nodes.get(node)
	if e == nil {
		arr := make([]codec.EncodedNeighbor, a.policy.InitialDegree)
		arr[0] = v
		e = &nodeEntry{id: node}
		e.edges.Store(&arr)
		e.degree.Store(1)
		a.arrayBytes.Add(int64(len(arr)) * encodedSize)
		a.nodes.insert(e)
		return 0
	}

	d := int(e.degree.Load())
	arr := *e.edges.Load()
	if d == len(arr) {
		grown := make([]codec.EncodedNeighbor, a.policy.NextCapacity(len(arr)))
		copy(grown, arr[:d])
		// Publish the fully copied array before any slot beyond d is
		// written or counted.
		e.edges.Store(&grown)
		a.arrayBytes.Add(int64(len(grown)-len(arr)) * encodedSize)
		a.growths.Add(1)
		arr = grown
		grewTo = len(grown)
	}
	arr[d] = v
	e.degree.Store(int32(d + 1))
	return grewTo
}

// Degree returns node's edge count in this segment, 0 when absent.
func (a *Adjacency) Degree(node codec.NodeID) int {
	e := a.nodes.get(node)
	if e == nil {
		return 0
	}
	return int(e.degree.Load())
}

// View returns node's neighbors in insertion order. The slice is a stable
// snapshot: its elements never change and later appends are not visible
// through it. Callers must not modify it.
func (a *Adjacency) View(node codec.NodeID) []codec.EncodedNeighbor {
	e := a.nodes.get(node)
	if e == nil {
		return nil
	}
	return e.view()
}

// NumNodes is the number of distinct nodes with at least one edge.
func (a *Adjacency) NumNodes() int {
	return a.nodes.count()
}

// Nodes calls fn for each node with at least one edge, in no particular
// order, until fn returns false.
func (a *Adjacency) Nodes(fn func(codec.NodeID) bool) {
	a.nodes.forEach(func(e *nodeEntry) bool {
		return fn(e.id)
	})
}

// Growths is the number of array reallocations performed so far.
func (a *Adjacency) Growths() int64 {
	return a.growths.Load()
}

// MemoryBytes estimates the memory held by this adjacency.
func (a *Adjacency) MemoryBytes() int64 {
	return a.nodes.overheadBytes() + a.arrayBytes.Load()
}
