package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/bigraph/internal/graph"
)

type fixedChecker struct {
	name   string
	status Status
}

func (f fixedChecker) Name() string { return f.name }

func (f fixedChecker) Check(context.Context) *ComponentHealth {
	return &ComponentHealth{Name: f.name, Status: f.status}
}

type fixedStats graph.Stats

func (f fixedStats) Stats() graph.Stats { return graph.Stats(f) }

func TestManager_WorstStatusWins(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.Register(fixedChecker{"a", StatusHealthy})
	assert.Equal(t, StatusHealthy, m.Check(context.Background()).Status)

	m.Register(fixedChecker{"b", StatusDegraded})
	assert.Equal(t, StatusDegraded, m.Check(context.Background()).Status)

	m.Register(fixedChecker{"c", StatusUnhealthy})
	r := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Len(t, r.Components, 3)
	assert.EqualValues(t, 3, r.CheckCount)
}

func TestManager_HTTPHandler(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.Register(fixedChecker{"a", StatusHealthy})

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, StatusHealthy, r.Status)

	m.Register(fixedChecker{"b", StatusUnhealthy})
	rec = httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGraphChecker(t *testing.T) {
	c := NewGraphChecker(fixedStats{Segments: 2, MemoryBytes: 1000}, 0)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	c = NewGraphChecker(fixedStats{Segments: 2, MemoryBytes: 1000}, 500)
	ch := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, ch.Status)
	assert.NotEmpty(t, ch.Message)

	cfg := graph.DefaultConfig()
	cfg.MaxEdgesPerSegment = 4
	g, err := graph.New(cfg)
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(1, 2, 0))
	ch = NewGraphChecker(g, 0).Check(context.Background())
	assert.Equal(t, StatusHealthy, ch.Status)
	assert.EqualValues(t, 1, ch.Metadata["live_edges"])
}
