package graph

import (
	"github.com/23skdu/bigraph/internal/segment"
)

// Reasons passed to StatsCollector.EdgeRejected.
const (
	RejectInvalidEncoding = "invalid_encoding"
)

// StatsCollector is the sink for operational counters. The graph calls it
// from the writer goroutine; implementations must not block.
type StatsCollector interface {
	segment.StatsCollector
	EdgeAdded()
	EdgeRejected(reason string)
}

// NopStats discards everything.
type NopStats struct{}

func (NopStats) SegmentCreated(int64)         {}
func (NopStats) SegmentEvicted(int64, int)    {}
func (NopStats) ArrayGrown(segment.Side, int) {}
func (NopStats) EdgeAdded()                   {}
func (NopStats) EdgeRejected(string)          {}

// Stats is a point-in-time summary of the graph.
type Stats struct {
	Segments        int   `json:"segments"`
	OldestSegmentID int64 `json:"oldest_segment_id"`
	NewestSegmentID int64 `json:"newest_segment_id"`
	SegmentsCreated int64 `json:"segments_created"`
	SegmentsEvicted int64 `json:"segments_evicted"`
	LiveEdges       int64 `json:"live_edges"`
	LeftNodes       int   `json:"left_nodes"`
	RightNodes      int   `json:"right_nodes"`
	MemoryBytes     int64 `json:"memory_bytes"`
}
