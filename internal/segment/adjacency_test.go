package segment

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/bigraph/internal/codec"
	bgerrors "github.com/23skdu/bigraph/internal/errors"
)

func testSideConfig() SideConfig {
	return SideConfig{
		ExpectedNumNodes: 4,
		GrowthPolicy: GrowthPolicy{
			InitialDegree:     1,
			GrowthFactor:      2,
			ExpectedMaxDegree: 64,
		},
	}
}

func TestAdjacency_AppendAndView(t *testing.T) {
	a := NewAdjacency(Left, testSideConfig())

	assert.Equal(t, 0, a.Degree(1))
	assert.Nil(t, a.View(1))

	for i := 0; i < 10; i++ {
		a.Append(1, codec.EncodedNeighbor(100+i))
	}
	a.Append(2, 200)

	assert.Equal(t, 10, a.Degree(1))
	assert.Equal(t, 1, a.Degree(2))
	assert.Equal(t, 2, a.NumNodes())

	view := a.View(1)
	require.Len(t, view, 10)
	for i, v := range view {
		assert.Equal(t, codec.EncodedNeighbor(100+i), v, "insertion order at %d", i)
	}
	assert.Equal(t, len(view), cap(view), "views are capped so callers cannot append into writer space")
}

func TestAdjacency_GrowthReported(t *testing.T) {
	a := NewAdjacency(Right, testSideConfig())

	var grown []int
	for i := 0; i < 9; i++ {
		if c := a.Append(7, codec.EncodedNeighbor(i)); c > 0 {
			grown = append(grown, c)
		}
	}
	// 1 -> 2 -> 4 -> 8 -> 16
	assert.Equal(t, []int{2, 4, 8, 16}, grown)
	assert.Equal(t, int64(4), a.Growths())
	assert.Greater(t, a.MemoryBytes(), int64(16*8))
}

func TestAdjacency_ViewIsStableAcrossGrowth(t *testing.T) {
	a := NewAdjacency(Left, testSideConfig())
	a.Append(1, 10)
	a.Append(1, 11)

	before := a.View(1)
	for i := 0; i < 100; i++ {
		a.Append(1, codec.EncodedNeighbor(20+i))
	}

	assert.Equal(t, []codec.EncodedNeighbor{10, 11}, before)
	assert.Equal(t, 102, a.Degree(1))
}

func TestAdjacency_NodesVisitsAll(t *testing.T) {
	a := NewAdjacency(Left, testSideConfig())
	want := map[codec.NodeID]bool{}
	for i := codec.NodeID(-50); i < 50; i++ {
		a.Append(i, 1)
		want[i] = true
	}

	got := map[codec.NodeID]bool{}
	a.Nodes(func(id codec.NodeID) bool {
		got[id] = true
		return true
	})
	assert.Equal(t, want, got)

	visited := 0
	a.Nodes(func(codec.NodeID) bool {
		visited++
		return visited < 3
	})
	assert.Equal(t, 3, visited, "Nodes stops when fn returns false")
}

// TestAdjacency_ConcurrentReaders checks that a reader never sees a degree
// larger than the populated prefix while the writer grows arrays.
func TestAdjacency_ConcurrentReaders(t *testing.T) {
	a := NewAdjacency(Left, testSideConfig())
	const (
		nodes   = 64
		perNode = 500
	)

	var wg sync.WaitGroup
	var stop atomic.Bool
	var violations atomic.Int64

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				for n := codec.NodeID(0); n < nodes; n++ {
					view := a.View(n)
					for i, v := range view {
						// Values are written as node*perNode + position.
						if v != codec.EncodedNeighbor(int64(n)*perNode+int64(i)) {
							violations.Add(1)
						}
					}
				}
			}
		}()
	}

	for i := 0; i < perNode; i++ {
		for n := codec.NodeID(0); n < nodes; n++ {
			a.Append(n, codec.EncodedNeighbor(int64(n)*perNode+int64(i)))
		}
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, violations.Load())
	for n := codec.NodeID(0); n < nodes; n++ {
		assert.Equal(t, perNode, a.Degree(n))
	}
}

func TestSideConfig_Validate(t *testing.T) {
	require.NoError(t, testSideConfig().Validate())

	cfg := testSideConfig()
	cfg.ExpectedNumNodes = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, bgerrors.IsType(err, bgerrors.ErrorTypeConfiguration))
}
