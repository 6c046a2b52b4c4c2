// Package health serves a JSON health report over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/23skdu/bigraph/internal/metrics"
)

// Status is the health of a component or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) gauge() float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Report is the overall health returned by the handler.
type Report struct {
	Status        Status                      `json:"status"`
	Timestamp     time.Time                   `json:"timestamp"`
	Uptime        string                      `json:"uptime"`
	Components    map[string]*ComponentHealth `json:"components"`
	NumGoroutines int                         `json:"num_goroutines"`
	HeapAlloc     uint64                      `json:"heap_alloc_bytes"`
	CheckCount    int64                       `json:"check_count"`
}

// Checker checks one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) *ComponentHealth
}

// Manager runs the registered checkers.
type Manager struct {
	startTime  time.Time
	logger     zerolog.Logger
	checkCount atomic.Int64

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager creates a Manager with no checkers.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{startTime: time.Now(), logger: logger}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.logger.Debug().Str("component", c.Name()).Msg("Registered health checker")
}

// Check runs every checker. The overall status is the worst component
// status.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	report := &Report{
		Status:        StatusHealthy,
		Timestamp:     time.Now(),
		Uptime:        time.Since(m.startTime).Round(time.Second).String(),
		Components:    make(map[string]*ComponentHealth, len(checkers)),
		NumGoroutines: runtime.NumGoroutine(),
		HeapAlloc:     ms.HeapAlloc,
		CheckCount:    m.checkCount.Add(1),
	}

	for _, c := range checkers {
		start := time.Now()
		ch := c.Check(ctx)
		metrics.HealthCheckDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
		metrics.HealthStatus.WithLabelValues(c.Name()).Set(ch.Status.gauge())

		report.Components[c.Name()] = ch
		if ch.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
		} else if ch.Status == StatusDegraded && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	if report.Status != StatusHealthy {
		m.logger.Warn().
			Str("overall_status", string(report.Status)).
			Int("components_checked", len(checkers)).
			Msg("Health check not healthy")
	}
	return report
}

// HTTPHandler returns an http handler for health checks. Unhealthy
// reports are served with 503.
func (m *Manager) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := m.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			http.Error(w, "Failed to encode health response", http.StatusInternalServerError)
		}
	})
}
