package segment

import (
	"fmt"
	"sync/atomic"

	"github.com/23skdu/bigraph/internal/codec"
	bgerrors "github.com/23skdu/bigraph/internal/errors"
)

// Segment is a fixed-capacity, append-only chunk of the edge history. Every
// edge is stored in both its left- and right-indexed adjacency (the right
// one is absent in left-indexed-only graphs), so a segment is the unit of
// eviction for both sides at once.
type Segment struct {
	id        int64
	capacity  int64
	liveEdges atomic.Int64

	left  *Adjacency
	right *Adjacency
}

// NewSegment builds an empty segment. A nil right config produces a
// left-indexed-only segment.
func NewSegment(id int64, capacity int, left SideConfig, right *SideConfig) *Segment {
	s := &Segment{
		id:       id,
		capacity: int64(capacity),
		left:     NewAdjacency(Left, left),
	}
	if right != nil {
		s.right = NewAdjacency(Right, *right)
	}
	return s
}

// ID is the segment's creation-ordered identifier.
func (s *Segment) ID() int64 { return s.id }

// Capacity is the maximum number of edges the segment holds.
func (s *Segment) Capacity() int { return int(s.capacity) }

// LiveEdges is the number of edges inserted so far.
func (s *Segment) LiveEdges() int { return int(s.liveEdges.Load()) }

// Sealed reports whether the segment is full.
func (s *Segment) Sealed() bool { return s.liveEdges.Load() >= s.capacity }

// Adjacency returns the requested side, or nil when the segment does not
// index it.
func (s *Segment) Adjacency(side Side) *Adjacency {
	if side == Left {
		return s.left
	}
	return s.right
}

// Degree returns node's degree on side within this segment.
func (s *Segment) Degree(side Side, node codec.NodeID) int {
	if a := s.Adjacency(side); a != nil {
		return a.Degree(node)
	}
	return 0
}

// View returns node's neighbors on side within this segment.
func (s *Segment) View(side Side, node codec.NodeID) []codec.EncodedNeighbor {
	if a := s.Adjacency(side); a != nil {
		return a.View(node)
	}
	return nil
}

// Growth describes an array reallocation caused by an append.
type Growth struct {
	Side     Side
	Capacity int
}

// AppendEdge stores one edge on both sides. encRight is the encoded right
// neighbor stored under left; encLeft is the encoded left neighbor stored
// under right. Appending to a sealed segment is a programming error and
// panics. Writer only.
func (s *Segment) AppendEdge(left codec.NodeID, encRight codec.EncodedNeighbor,
	right codec.NodeID, encLeft codec.EncodedNeighbor, onGrow func(Growth)) {
	n := s.liveEdges.Load()
	if n >= s.capacity {
		panic(bgerrors.NewInvariantError("append_edge",
			fmt.Sprintf("segment %d is sealed at %d edges", s.id, s.capacity)))
	}

	if c := s.left.Append(left, encRight); c > 0 && onGrow != nil {
		onGrow(Growth{Side: Left, Capacity: c})
	}
	if s.right != nil {
		if c := s.right.Append(right, encLeft); c > 0 && onGrow != nil {
			onGrow(Growth{Side: Right, Capacity: c})
		}
	}
	s.liveEdges.Store(n + 1)
}

// NumNodes is the number of distinct nodes on side in this segment.
func (s *Segment) NumNodes(side Side) int {
	if a := s.Adjacency(side); a != nil {
		return a.NumNodes()
	}
	return 0
}

// MemoryBytes estimates the memory held by both sides.
func (s *Segment) MemoryBytes() int64 {
	b := s.left.MemoryBytes()
	if s.right != nil {
		b += s.right.MemoryBytes()
	}
	return b
}

// Info is a point-in-time summary of a segment.
type Info struct {
	ID          int64 `json:"id"`
	Capacity    int   `json:"capacity"`
	LiveEdges   int   `json:"live_edges"`
	Sealed      bool  `json:"sealed"`
	LeftNodes   int   `json:"left_nodes"`
	RightNodes  int   `json:"right_nodes"`
	MemoryBytes int64 `json:"memory_bytes"`
}

// Info summarizes the segment.
func (s *Segment) Info() Info {
	return Info{
		ID:          s.id,
		Capacity:    int(s.capacity),
		LiveEdges:   s.LiveEdges(),
		Sealed:      s.Sealed(),
		LeftNodes:   s.NumNodes(Left),
		RightNodes:  s.NumNodes(Right),
		MemoryBytes: s.MemoryBytes(),
	}
}
