// Package graph is an in-memory bipartite graph built from a bounded ring of
// append-only segments. One goroutine adds edges; any number of goroutines
// read degrees, enumerate neighbors newest-first and draw random samples
// without taking locks.
package graph

import (
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/23skdu/bigraph/internal/codec"
	bgerrors "github.com/23skdu/bigraph/internal/errors"
	"github.com/23skdu/bigraph/internal/pool"
	"github.com/23skdu/bigraph/internal/sampler"
	"github.com/23skdu/bigraph/internal/segment"
)

type (
	NodeID          = codec.NodeID
	EdgeType        = codec.EdgeType
	EncodedNeighbor = codec.EncodedNeighbor
	Side            = segment.Side
	RandomSource    = sampler.RandomSource
	SegmentInfo     = segment.Info
)

const (
	Left  = segment.Left
	Right = segment.Right
)

// Edge is a decoded neighbor together with its edge type.
type Edge struct {
	Neighbor NodeID   `json:"neighbor"`
	Type     EdgeType `json:"type"`
}

// Graph is the bipartite graph store.
//
// Neighbor order is the same on both sides: segments from newest to
// oldest, and insertion order within a segment.
type Graph struct {
	ring            *segment.Ring
	codec           codec.EdgeCodec
	stats           StatsCollector
	logger          zerolog.Logger
	leftIndexedOnly bool

	writing atomic.Bool
}

// New validates cfg and builds an empty graph.
func New(cfg Config) (*Graph, error) {
	if cfg.Codec == nil {
		cfg.Codec = codec.Identity{}
	}
	if cfg.Stats == nil {
		cfg.Stats = NopStats{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ring, err := segment.NewRing(cfg.ringConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg.Logger.Info().
		Int("max_segments", cfg.MaxSegments).
		Int("max_edges_per_segment", cfg.MaxEdgesPerSegment).
		Bool("left_indexed_only", cfg.LeftIndexedOnly).
		Msg("Bipartite graph created")

	return &Graph{
		ring:            ring,
		codec:           cfg.Codec,
		stats:           cfg.Stats,
		logger:          cfg.Logger,
		leftIndexedOnly: cfg.LeftIndexedOnly,
	}, nil
}

// AddEdge records an edge between left and right on both sides. Encoding
// failures are returned before anything is written. AddEdge must only be
// called from one goroutine at a time; overlapping calls panic.
func (g *Graph) AddEdge(left, right NodeID, t EdgeType) error {
	if !g.writing.CompareAndSwap(false, true) {
		panic(bgerrors.NewInvariantError("add_edge", "concurrent writers detected"))
	}
	defer g.writing.Store(false)

	encRight, err := g.codec.Encode(right, t)
	if err != nil {
		g.stats.EdgeRejected(RejectInvalidEncoding)
		return fmt.Errorf("add edge (%d, %d): right: %w", left, right, err)
	}
	var encLeft EncodedNeighbor
	if !g.leftIndexedOnly {
		encLeft, err = g.codec.Encode(left, t)
		if err != nil {
			g.stats.EdgeRejected(RejectInvalidEncoding)
			return fmt.Errorf("add edge (%d, %d): left: %w", left, right, err)
		}
	}

	g.ring.AppendEdge(left, encRight, right, encLeft)
	g.stats.EdgeAdded()
	return nil
}

func (g *Graph) indexes(side Side) bool {
	return side == Left || !g.leftIndexedOnly
}

// Degree sums node's degree over every live segment. Unseen nodes have
// degree 0.
func (g *Graph) Degree(side Side, node NodeID) int {
	if !g.indexes(side) {
		return 0
	}
	d := 0
	for _, s := range g.ring.Snapshot() {
		d += s.Degree(side, node)
	}
	return d
}

func (g *Graph) LeftDegree(node NodeID) int  { return g.Degree(Left, node) }
func (g *Graph) RightDegree(node NodeID) int { return g.Degree(Right, node) }

// encoded yields node's stored values newest segment first. The segment
// list is captured when iteration starts; each segment's contents are read
// when the iterator reaches it.
func (g *Graph) encoded(side Side, node NodeID) iter.Seq[EncodedNeighbor] {
	return func(yield func(EncodedNeighbor) bool) {
		if !g.indexes(side) {
			return
		}
		snap := g.ring.Snapshot()
		for i := range snap {
			for _, v := range snap.Newest(i).View(side, node) {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Neighbors returns a lazy sequence over node's neighbors, newest segment
// first and insertion order within a segment. Every range over the
// sequence starts again from the newest segment.
func (g *Graph) Neighbors(side Side, node NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		for v := range g.encoded(side, node) {
			if !yield(g.codec.DecodeNodeID(v)) {
				return
			}
		}
	}
}

func (g *Graph) LeftNeighbors(node NodeID) iter.Seq[NodeID]  { return g.Neighbors(Left, node) }
func (g *Graph) RightNeighbors(node NodeID) iter.Seq[NodeID] { return g.Neighbors(Right, node) }

// Edges is Neighbors with the decoded edge type of each edge.
func (g *Graph) Edges(side Side, node NodeID) iter.Seq2[NodeID, EdgeType] {
	return func(yield func(NodeID, EdgeType) bool) {
		for v := range g.encoded(side, node) {
			if !yield(g.codec.DecodeNodeID(v), g.codec.DecodeEdgeType(v)) {
				return
			}
		}
	}
}

func (g *Graph) LeftEdges(node NodeID) iter.Seq2[NodeID, EdgeType] {
	return g.Edges(Left, node)
}

func (g *Graph) RightEdges(node NodeID) iter.Seq2[NodeID, EdgeType] {
	return g.Edges(Right, node)
}

// AppendNeighbors appends node's neighbors, in Neighbors order, to dst.
func (g *Graph) AppendNeighbors(dst []NodeID, side Side, node NodeID) []NodeID {
	for v := range g.encoded(side, node) {
		dst = append(dst, g.codec.DecodeNodeID(v))
	}
	return dst
}

// parts freezes node's per-segment arrays, newest first, so that the total
// degree and the position mapping of a sampling call agree with each other.
func (g *Graph) parts(side Side, node NodeID) sampler.Parts[EncodedNeighbor] {
	if !g.indexes(side) {
		return nil
	}
	snap := g.ring.Snapshot()
	var p sampler.Parts[EncodedNeighbor]
	for i := range snap {
		if v := snap.Newest(i).View(side, node); len(v) > 0 {
			p = append(p, v)
		}
	}
	return p
}

// RandomNeighbors draws k neighbors of node uniformly with replacement.
// The i-th result comes from the i-th rng.Intn call, over positions in
// Neighbors order. A node without edges yields an empty result and no rng
// calls. A negative k panics.
func (g *Graph) RandomNeighbors(side Side, node NodeID, k int, rng RandomSource) []NodeID {
	drawn := sampler.Sample(g.parts(side, node), k, rng, nil)
	out := make([]NodeID, len(drawn))
	for i, v := range drawn {
		out[i] = g.codec.DecodeNodeID(v)
	}
	return out
}

func (g *Graph) RandomLeftNeighbors(node NodeID, k int, rng RandomSource) []NodeID {
	return g.RandomNeighbors(Left, node, k, rng)
}

func (g *Graph) RandomRightNeighbors(node NodeID, k int, rng RandomSource) []NodeID {
	return g.RandomNeighbors(Right, node, k, rng)
}

// RandomEdges is RandomNeighbors with edge types.
func (g *Graph) RandomEdges(side Side, node NodeID, k int, rng RandomSource) []Edge {
	drawn := sampler.Sample(g.parts(side, node), k, rng, nil)
	out := make([]Edge, len(drawn))
	for i, v := range drawn {
		out[i] = Edge{Neighbor: g.codec.DecodeNodeID(v), Type: g.codec.DecodeEdgeType(v)}
	}
	return out
}

// NumNodes counts distinct nodes on side across live segments.
func (g *Graph) NumNodes(side Side) int {
	if !g.indexes(side) {
		return 0
	}
	seen := pool.GetBitmap()
	defer pool.PutBitmap(seen)
	for _, s := range g.ring.Snapshot() {
		if a := s.Adjacency(side); a != nil {
			a.Nodes(func(id NodeID) bool {
				seen.Add(uint64(id))
				return true
			})
		}
	}
	return int(seen.GetCardinality())
}

// NumEdges is the number of edges held by live segments.
func (g *Graph) NumEdges() int64 {
	return g.ring.LiveEdges()
}

// Segments summarizes the live segments, oldest first.
func (g *Graph) Segments() []SegmentInfo {
	snap := g.ring.Snapshot()
	out := make([]SegmentInfo, len(snap))
	for i, s := range snap {
		out[i] = s.Info()
	}
	return out
}

// Stats summarizes the graph.
func (g *Graph) Stats() Stats {
	st := Stats{
		Segments:        g.ring.Len(),
		SegmentsCreated: g.ring.Created(),
		SegmentsEvicted: g.ring.Evicted(),
		LiveEdges:       g.ring.LiveEdges(),
		LeftNodes:       g.NumNodes(Left),
		RightNodes:      g.NumNodes(Right),
		MemoryBytes:     g.ring.MemoryBytes(),
	}
	st.OldestSegmentID, _ = g.ring.OldestID()
	st.NewestSegmentID, _ = g.ring.NewestID()
	return st
}

// Codec returns the graph's edge codec.
func (g *Graph) Codec() codec.EdgeCodec { return g.codec }

// LeftIndexedOnly reports whether right-side reads are disabled.
func (g *Graph) LeftIndexedOnly() bool { return g.leftIndexedOnly }
