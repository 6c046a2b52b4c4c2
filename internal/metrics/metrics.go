// Package metrics holds the process-wide Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsCreatedTotal counts segments created by the ring
	SegmentsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bigraph_segments_created_total",
			Help: "Total number of graph segments created",
		},
	)

	// SegmentsEvictedTotal counts segments dropped from the ring
	SegmentsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bigraph_segments_evicted_total",
			Help: "Total number of graph segments evicted",
		},
	)

	// EdgesEvictedTotal counts edges released with evicted segments
	EdgesEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bigraph_edges_evicted_total",
			Help: "Total number of edges dropped by segment eviction",
		},
	)

	// LiveSegments tracks the number of retained segments
	LiveSegments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bigraph_live_segments",
			Help: "Number of segments currently retained",
		},
	)

	// AdjacencyGrowthsTotal counts per-node array reallocations
	AdjacencyGrowthsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigraph_adjacency_growths_total",
			Help: "Total number of neighbor array growths",
		},
		[]string{"side"},
	)

	// AdjacencyCapacity records the capacity reached by each growth
	AdjacencyCapacity = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bigraph_adjacency_capacity",
			Help:    "Neighbor array capacity after growth",
			Buckets: prometheus.ExponentialBuckets(2, 4, 10),
		},
		[]string{"side"},
	)

	// EdgesAddedTotal counts accepted edges
	EdgesAddedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bigraph_edges_added_total",
			Help: "Total number of edges added to the graph",
		},
	)

	// EdgesRejectedTotal counts edges refused before storage
	EdgesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigraph_edges_rejected_total",
			Help: "Total number of edges rejected",
		},
		[]string{"reason"},
	)

	// FlightOperationsTotal counts the number of Flight operations
	FlightOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigraph_flight_operations_total",
			Help: "The total number of processed Arrow Flight operations",
		},
		[]string{"method", "status"},
	)

	// FlightDurationSeconds measures the latency of Flight operations
	FlightDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bigraph_flight_duration_seconds",
			Help:    "Duration of Arrow Flight operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// FlightRowsTotal counts edge or neighbor rows moved over Flight
	FlightRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigraph_flight_rows_total",
			Help: "Total rows read or written by Flight operations",
		},
		[]string{"method"},
	)

	// RateLimitRequestsTotal counts rate limited requests
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigraph_rate_limit_requests_total",
			Help: "Total number of requests handled by rate limiter",
		},
		[]string{"status"}, // "allowed", "throttled"
	)

	// LogEntriesTotal counts log entries by level
	LogEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bigraph_log_entries_total",
			Help: "Total number of log entries by level",
		},
		[]string{"level"},
	)

	// LogErrorsTotal counts error and fatal log entries
	LogErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bigraph_log_errors_total",
			Help: "Total number of error log entries",
		},
	)
)

var (
	// HealthCheckDuration measures component health checks
	HealthCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bigraph_health_check_duration_seconds",
			Help:    "Duration of health checks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	// HealthStatus reports component health (1=healthy, 0.5=degraded, 0=unhealthy)
	HealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bigraph_health_status",
			Help: "Component health status (1=healthy, 0.5=degraded, 0=unhealthy)",
		},
		[]string{"component"},
	)
)
