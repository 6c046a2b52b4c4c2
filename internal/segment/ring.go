package segment

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/23skdu/bigraph/internal/codec"
	bgerrors "github.com/23skdu/bigraph/internal/errors"
)

// StatsCollector receives segment lifecycle events. Implementations must be
// safe for use from the writer goroutine and must not block.
type StatsCollector interface {
	SegmentCreated(id int64)
	SegmentEvicted(id int64, edges int)
	ArrayGrown(side Side, capacity int)
}

type nopStats struct{}

func (nopStats) SegmentCreated(int64)      {}
func (nopStats) SegmentEvicted(int64, int) {}
func (nopStats) ArrayGrown(Side, int)      {}

// RingConfig configures a Ring.
type RingConfig struct {
	MaxSegments        int
	MaxEdgesPerSegment int
	Left               SideConfig
	Right              SideConfig
	// LeftIndexedOnly skips the right-indexed adjacency entirely.
	LeftIndexedOnly bool

	Stats  StatsCollector
	Logger zerolog.Logger
}

// Validate checks the ring parameters.
func (c RingConfig) Validate() error {
	if c.MaxSegments < 1 {
		return bgerrors.NewConfigurationError("ring_config",
			fmt.Sprintf("max segments must be >= 1, got %d", c.MaxSegments))
	}
	if c.MaxEdgesPerSegment < 1 || c.MaxEdgesPerSegment > math.MaxInt32 {
		return bgerrors.NewConfigurationError("ring_config",
			fmt.Sprintf("max edges per segment must be in [1, %d], got %d", math.MaxInt32, c.MaxEdgesPerSegment))
	}
	if err := c.Left.Validate(); err != nil {
		return bgerrors.WrapConfigurationError(err, "ring_config", "left side")
	}
	if !c.LeftIndexedOnly {
		if err := c.Right.Validate(); err != nil {
			return bgerrors.WrapConfigurationError(err, "ring_config", "right side")
		}
	}
	return nil
}

// Snapshot is an immutable list of live segments ordered oldest to newest.
type Snapshot []*Segment

// Newest returns the i-th segment counting from the newest (i == 0).
func (s Snapshot) Newest(i int) *Segment {
	return s[len(s)-1-i]
}

// Ring keeps at most MaxSegments segments. The writer appends into the
// newest one; when it fills up the next append lazily creates a successor,
// evicting the oldest segment if the bound would be exceeded.
//
// Readers call Snapshot and walk it without locks. Eviction only unlinks a
// segment from future snapshots; readers that already hold it keep reading
// its frozen contents until they drop the reference.
type Ring struct {
	cfg   RingConfig
	right *SideConfig

	snapshot atomic.Pointer[Snapshot]
	current  *Segment
	nextID   int64

	created atomic.Int64
	evicted atomic.Int64
}

// NewRing validates cfg and returns an empty ring. No segment is allocated
// until the first append.
func NewRing(cfg RingConfig) (*Ring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Stats == nil {
		cfg.Stats = nopStats{}
	}
	// Every segment shares one ladder per side.
	cfg.Left.GrowthPolicy = cfg.Left.compile()
	if !cfg.LeftIndexedOnly {
		cfg.Right.GrowthPolicy = cfg.Right.compile()
	}
	r := &Ring{cfg: cfg}
	if !cfg.LeftIndexedOnly {
		right := cfg.Right
		r.right = &right
	}
	empty := Snapshot{}
	r.snapshot.Store(&empty)
	return r, nil
}

// Current returns the writable segment, creating one when the ring is empty
// or the newest segment is sealed. Writer only.
func (r *Ring) Current() *Segment {
	if r.current == nil || r.current.Sealed() {
		r.roll()
	}
	return r.current
}

func (r *Ring) roll() {
	seg := NewSegment(r.nextID, r.cfg.MaxEdgesPerSegment, r.cfg.Left, r.right)
	r.nextID++

	old := *r.snapshot.Load()
	drop := 0
	if len(old)+1 > r.cfg.MaxSegments {
		drop = len(old) + 1 - r.cfg.MaxSegments
	}
	next := make(Snapshot, 0, len(old)+1-drop)
	next = append(next, old[drop:]...)
	next = append(next, seg)

	r.current = seg
	r.snapshot.Store(&next)
	r.created.Add(1)
	r.cfg.Stats.SegmentCreated(seg.id)
	r.cfg.Logger.Debug().
		Int64("segment_id", seg.id).
		Int("live_segments", len(next)).
		Msg("Segment created")

	for _, gone := range old[:drop] {
		r.evicted.Add(1)
		r.cfg.Stats.SegmentEvicted(gone.id, gone.LiveEdges())
		r.cfg.Logger.Debug().
			Int64("segment_id", gone.id).
			Int("edges", gone.LiveEdges()).
			Msg("Segment evicted")
	}
}

// AppendEdge stores an edge in the current segment and returns that segment.
// An edge never spans two segments. Writer only.
func (r *Ring) AppendEdge(left codec.NodeID, encRight codec.EncodedNeighbor,
	right codec.NodeID, encLeft codec.EncodedNeighbor) *Segment {
	seg := r.Current()
	seg.AppendEdge(left, encRight, right, encLeft, r.onGrow)
	return seg
}

func (r *Ring) onGrow(g Growth) {
	r.cfg.Stats.ArrayGrown(g.Side, g.Capacity)
}

// Snapshot returns the live segments, oldest first. The returned slice must
// not be modified.
func (r *Ring) Snapshot() Snapshot {
	return *r.snapshot.Load()
}

// Len is the number of live segments.
func (r *Ring) Len() int {
	return len(r.Snapshot())
}

// OldestID and NewestID return the id range of live segments; ok is false
// when the ring is empty.
func (r *Ring) OldestID() (id int64, ok bool) {
	s := r.Snapshot()
	if len(s) == 0 {
		return 0, false
	}
	return s[0].id, true
}

func (r *Ring) NewestID() (id int64, ok bool) {
	s := r.Snapshot()
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1].id, true
}

// Created and Evicted count lifecycle events since construction.
func (r *Ring) Created() int64 { return r.created.Load() }

func (r *Ring) Evicted() int64 { return r.evicted.Load() }

// LiveEdges sums edge counts over the live segments.
func (r *Ring) LiveEdges() int64 {
	var n int64
	for _, s := range r.Snapshot() {
		n += int64(s.LiveEdges())
	}
	return n
}

// MemoryBytes estimates the memory held by live segments.
func (r *Ring) MemoryBytes() int64 {
	var n int64
	for _, s := range r.Snapshot() {
		n += s.MemoryBytes()
	}
	return n
}
