package metrics

import (
	"github.com/23skdu/bigraph/internal/segment"
)

// Collector forwards graph lifecycle events to the package metrics. It
// satisfies graph.StatsCollector.
type Collector struct{}

// NewCollector returns a Collector. The zero value is also usable.
func NewCollector() *Collector {
	return &Collector{}
}

func (*Collector) SegmentCreated(int64) {
	SegmentsCreatedTotal.Inc()
	LiveSegments.Inc()
}

func (*Collector) SegmentEvicted(_ int64, edges int) {
	SegmentsEvictedTotal.Inc()
	EdgesEvictedTotal.Add(float64(edges))
	LiveSegments.Dec()
}

func (*Collector) ArrayGrown(side segment.Side, capacity int) {
	AdjacencyGrowthsTotal.WithLabelValues(side.String()).Inc()
	AdjacencyCapacity.WithLabelValues(side.String()).Observe(float64(capacity))
}

func (*Collector) EdgeAdded() {
	EdgesAddedTotal.Inc()
}

func (*Collector) EdgeRejected(reason string) {
	EdgesRejectedTotal.WithLabelValues(reason).Inc()
}
