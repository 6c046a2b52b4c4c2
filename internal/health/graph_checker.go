package health

import (
	"context"
	"fmt"
	"time"

	"github.com/23skdu/bigraph/internal/graph"
)

// GraphSource is the part of *graph.Graph the checker reads.
type GraphSource interface {
	Stats() graph.Stats
}

// GraphChecker reports the graph's retention state. It is degraded when
// the estimated memory of live segments passes a soft limit.
type GraphChecker struct {
	graph          GraphSource
	memoryWarnSize int64
}

// NewGraphChecker creates a checker. A memoryWarnSize of 0 disables the
// memory check.
func NewGraphChecker(g GraphSource, memoryWarnSize int64) *GraphChecker {
	return &GraphChecker{graph: g, memoryWarnSize: memoryWarnSize}
}

func (c *GraphChecker) Name() string { return "graph" }

func (c *GraphChecker) Check(context.Context) *ComponentHealth {
	st := c.graph.Stats()
	ch := &ComponentHealth{
		Name:        c.Name(),
		Status:      StatusHealthy,
		LastChecked: time.Now(),
		Metadata: map[string]any{
			"segments":          st.Segments,
			"newest_segment_id": st.NewestSegmentID,
			"live_edges":        st.LiveEdges,
			"memory_bytes":      st.MemoryBytes,
		},
	}
	if c.memoryWarnSize > 0 && st.MemoryBytes > c.memoryWarnSize {
		ch.Status = StatusDegraded
		ch.Message = fmt.Sprintf("live segments hold %d bytes, above %d", st.MemoryBytes, c.memoryWarnSize)
	}
	return ch
}
