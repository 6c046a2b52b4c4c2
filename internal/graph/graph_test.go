package graph

import (
	"errors"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/bigraph/internal/codec"
	bgerrors "github.com/23skdu/bigraph/internal/errors"
	"github.com/23skdu/bigraph/internal/segment"
)

var scenarioEdges = [][2]NodeID{
	{1, 11}, {1, 12}, {4, 41}, {2, 21}, {4, 42},
	{3, 31}, {2, 22}, {1, 13}, {4, 43}, {5, 11},
}

func smallSide() SideConfig {
	return SideConfig{
		ExpectedNumNodes: 4,
		GrowthPolicy: segment.GrowthPolicy{
			InitialDegree:     1,
			GrowthFactor:      2,
			ExpectedMaxDegree: 8,
		},
	}
}

func newTestGraph(t *testing.T, maxSegments, perSegment int) *Graph {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxSegments = maxSegments
	cfg.MaxEdgesPerSegment = perSegment
	cfg.Left = smallSide()
	cfg.Right = smallSide()
	g, err := New(cfg)
	require.NoError(t, err)
	return g
}

func addAll(t *testing.T, g *Graph, edges [][2]NodeID) {
	t.Helper()
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1], 0))
	}
}

type recordingCollector struct {
	NopStats
	added    atomic.Int64
	rejected map[string]int
	created  atomic.Int64
	evicted  atomic.Int64
}

func (r *recordingCollector) EdgeAdded()                { r.added.Add(1) }
func (r *recordingCollector) SegmentCreated(int64)      { r.created.Add(1) }
func (r *recordingCollector) SegmentEvicted(int64, int) { r.evicted.Add(1) }

func (r *recordingCollector) EdgeRejected(reason string) {
	if r.rejected == nil {
		r.rejected = map[string]int{}
	}
	r.rejected[reason]++
}

// countingSource wraps math/rand and counts calls.
type countingSource struct {
	rng   *rand.Rand
	calls int
}

func (c *countingSource) Intn(n int) int {
	c.calls++
	return c.rng.Intn(n)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSegments = 0
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.True(t, bgerrors.IsType(err, bgerrors.ErrorTypeConfiguration))

	cfg = DefaultConfig()
	cfg.MaxEdgesPerSegment = 0
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Left.GrowthFactor = 1
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_DefaultsCodecAndStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Codec = nil
	cfg.Stats = nil
	g, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, codec.Identity{}, g.Codec())
	require.NoError(t, g.AddEdge(1, 2, 0))
	assert.Equal(t, 1, g.LeftDegree(1))
}

func TestGraph_ScenarioA(t *testing.T) {
	g := newTestGraph(t, 4, 3)
	addAll(t, g, scenarioEdges)

	assert.Equal(t, 3, g.LeftDegree(1))
	assert.Equal(t, 3, g.LeftDegree(4))
	assert.Equal(t, 2, g.LeftDegree(2))
	assert.Equal(t, 1, g.LeftDegree(3))
	assert.Equal(t, 1, g.LeftDegree(5))
	assert.Equal(t, 2, g.RightDegree(11))
	assert.Equal(t, 1, g.RightDegree(13))

	// Same membership as a plain edge list, in newest-segment-first order.
	// Both sides share that order; see DESIGN.md §3.1.
	left1 := slices.Collect(g.LeftNeighbors(1))
	assert.ElementsMatch(t, []NodeID{11, 12, 13}, left1)
	assert.Equal(t, []NodeID{13, 11, 12}, left1)

	left4 := slices.Collect(g.LeftNeighbors(4))
	assert.ElementsMatch(t, []NodeID{41, 42, 43}, left4)
	assert.Equal(t, []NodeID{43, 42, 41}, left4)

	right11 := slices.Collect(g.RightNeighbors(11))
	assert.ElementsMatch(t, []NodeID{1, 5}, right11)
	assert.Equal(t, []NodeID{5, 1}, right11)

	assert.Equal(t, 4, g.Stats().Segments)
	assert.EqualValues(t, 10, g.NumEdges())
}

func TestGraph_ScenarioB_Eviction(t *testing.T) {
	g := newTestGraph(t, 3, 3)
	addAll(t, g, scenarioEdges)

	st := g.Stats()
	assert.Equal(t, 3, st.Segments)
	assert.EqualValues(t, 1, st.SegmentsEvicted)
	assert.EqualValues(t, 1, st.OldestSegmentID)
	assert.EqualValues(t, 3, st.NewestSegmentID)
	assert.EqualValues(t, 7, st.LiveEdges)

	assert.Equal(t, []NodeID{43, 42}, slices.Collect(g.LeftNeighbors(4)))
	assert.Equal(t, 2, g.LeftDegree(4))
	assert.Equal(t, []NodeID{13}, slices.Collect(g.LeftNeighbors(1)))
	assert.Equal(t, []NodeID{5}, slices.Collect(g.RightNeighbors(11)))
	assert.Equal(t, 0, g.RightDegree(12))
	assert.Empty(t, slices.Collect(g.RightNeighbors(41)))
}

type snapshotView struct {
	left  map[NodeID][]NodeID
	right map[NodeID][]NodeID
}

func takeView(g *Graph, edges [][2]NodeID) snapshotView {
	v := snapshotView{left: map[NodeID][]NodeID{}, right: map[NodeID][]NodeID{}}
	for _, e := range edges {
		v.left[e[0]] = slices.Collect(g.LeftNeighbors(e[0]))
		v.right[e[1]] = slices.Collect(g.RightNeighbors(e[1]))
	}
	return v
}

func TestGraph_ScenarioC_SteadyState(t *testing.T) {
	g := newTestGraph(t, 2, 5)
	addAll(t, g, scenarioEdges)
	first := takeView(g, scenarioEdges)

	for round := 0; round < 5; round++ {
		addAll(t, g, scenarioEdges[:3])
		assert.NotEqual(t, first, takeView(g, scenarioEdges), "intermediate state differs")
		addAll(t, g, scenarioEdges[3:])
		assert.Equal(t, first, takeView(g, scenarioEdges), "round %d", round)
		assert.EqualValues(t, 10, g.NumEdges())
	}
}

func TestGraph_DegreeMatchesNeighbors(t *testing.T) {
	g := newTestGraph(t, 3, 4)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		require.NoError(t, g.AddEdge(NodeID(rng.Intn(10)), NodeID(100+rng.Intn(20)), 0))
	}
	for n := NodeID(0); n < 10; n++ {
		assert.Equal(t, g.LeftDegree(n), len(slices.Collect(g.LeftNeighbors(n))))
	}
	for n := NodeID(100); n < 120; n++ {
		assert.Equal(t, g.RightDegree(n), len(g.AppendNeighbors(nil, Right, n)))
	}
	assert.LessOrEqual(t, g.NumEdges(), int64(12))
}

func TestGraph_InsertionVisibleImmediately(t *testing.T) {
	g := newTestGraph(t, 2, 2)
	for i := NodeID(0); i < 10; i++ {
		require.NoError(t, g.AddEdge(1, 100+i, 0))
		got := slices.Collect(g.LeftNeighbors(1))
		require.NotEmpty(t, got)
		assert.Contains(t, got, 100+i, "edge %d", i)
		// The newest edge is last in the newest segment, which comes first.
		assert.Equal(t, 100+i, got[int(i)%2])
		assert.Equal(t, []NodeID{1}, slices.Collect(g.RightNeighbors(100+i)))
	}
}

func TestGraph_UnknownNode(t *testing.T) {
	g := newTestGraph(t, 2, 2)
	assert.Equal(t, 0, g.LeftDegree(99))
	assert.Empty(t, slices.Collect(g.LeftNeighbors(99)))

	src := &countingSource{rng: rand.New(rand.NewSource(1))}
	assert.Empty(t, g.RandomLeftNeighbors(99, 10, src))
	assert.Zero(t, src.calls)
}

func TestGraph_EarlyBreak(t *testing.T) {
	g := newTestGraph(t, 4, 3)
	addAll(t, g, scenarioEdges)
	var got []NodeID
	for n := range g.LeftNeighbors(4) {
		got = append(got, n)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []NodeID{43, 42}, got)

	// A sequence can be ranged over again from the start.
	seq := g.LeftNeighbors(1)
	assert.Equal(t, slices.Collect(seq), slices.Collect(seq))
}

func TestGraph_RandomNeighbors(t *testing.T) {
	g := newTestGraph(t, 4, 3)
	addAll(t, g, scenarioEdges)

	out := g.RandomLeftNeighbors(4, 50, rand.New(rand.NewSource(3)))
	require.Len(t, out, 50)
	for _, n := range out {
		assert.Contains(t, []NodeID{41, 42, 43}, n)
	}

	a := g.RandomRightNeighbors(11, 20, rand.New(rand.NewSource(9)))
	b := g.RandomRightNeighbors(11, 20, rand.New(rand.NewSource(9)))
	assert.Equal(t, a, b)

	src := &countingSource{rng: rand.New(rand.NewSource(1))}
	g.RandomLeftNeighbors(1, 7, src)
	assert.Equal(t, 7, src.calls)

	assert.Empty(t, g.RandomLeftNeighbors(1, 0, src))
	assert.Panics(t, func() { g.RandomLeftNeighbors(1, -1, src) })
}

// fixedSource returns positions from a script.
type fixedSource []int

func (f *fixedSource) Intn(int) int {
	v := (*f)[0]
	*f = (*f)[1:]
	return v
}

func TestGraph_RandomNeighborsFollowEnumerationOrder(t *testing.T) {
	g := newTestGraph(t, 4, 3)
	addAll(t, g, scenarioEdges)

	src := fixedSource{0, 1, 2, 0}
	assert.Equal(t, []NodeID{13, 11, 12, 13}, g.RandomLeftNeighbors(1, 4, &src))
}

func TestGraph_BitMaskCodec(t *testing.T) {
	stats := &recordingCollector{}
	cfg := DefaultConfig()
	cfg.MaxSegments = 2
	cfg.MaxEdgesPerSegment = 4
	cfg.Codec = codec.MustBitMask(2)
	cfg.Stats = stats
	g, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, g.AddEdge(1, 10, 3))
	require.NoError(t, g.AddEdge(1, 11, 1))

	edges := map[NodeID]EdgeType{}
	for n, et := range g.LeftEdges(1) {
		edges[n] = et
	}
	assert.Equal(t, map[NodeID]EdgeType{10: 3, 11: 1}, edges)
	for n, et := range g.RightEdges(10) {
		assert.Equal(t, NodeID(1), n)
		assert.Equal(t, EdgeType(3), et)
	}

	err = g.AddEdge(1, 12, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, codec.ErrInvalidEncoding))
	assert.True(t, bgerrors.IsType(err, bgerrors.ErrorTypeEncoding))
	assert.Equal(t, 0, g.RightDegree(12))
	assert.Equal(t, 2, g.LeftDegree(1))

	err = g.AddEdge(-1, 12, 0)
	require.Error(t, err)
	assert.Equal(t, 0, g.RightDegree(12), "a failed left encoding leaves the right side untouched")

	assert.EqualValues(t, 2, stats.added.Load())
	assert.Equal(t, 2, stats.rejected[RejectInvalidEncoding])
	assert.EqualValues(t, 2, g.NumEdges())

	sampled := g.RandomEdges(Left, 1, 10, rand.New(rand.NewSource(5)))
	require.Len(t, sampled, 10)
	for _, e := range sampled {
		assert.Equal(t, edges[e.Neighbor], e.Type)
	}
}

func TestGraph_LeftIndexedOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSegments = 2
	cfg.MaxEdgesPerSegment = 2
	cfg.LeftIndexedOnly = true
	cfg.Right.GrowthFactor = 0 // ignored
	g, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, g.LeftIndexedOnly())

	addAll(t, g, scenarioEdges[:3])
	assert.Equal(t, []NodeID{11, 12}, slices.Collect(g.LeftNeighbors(1)))
	assert.Equal(t, 0, g.RightDegree(11))
	assert.Empty(t, slices.Collect(g.RightNeighbors(11)))
	assert.Empty(t, g.RandomRightNeighbors(11, 3, rand.New(rand.NewSource(1))))
	assert.Equal(t, 0, g.NumNodes(Right))
	assert.Equal(t, 2, g.NumNodes(Left))
}

func TestGraph_StatsAndSegments(t *testing.T) {
	stats := &recordingCollector{}
	cfg := DefaultConfig()
	cfg.MaxSegments = 3
	cfg.MaxEdgesPerSegment = 3
	cfg.Stats = stats
	g, err := New(cfg)
	require.NoError(t, err)
	addAll(t, g, scenarioEdges)

	st := g.Stats()
	assert.Equal(t, 3, st.Segments)
	assert.EqualValues(t, 4, st.SegmentsCreated)
	assert.EqualValues(t, 4, stats.created.Load())
	assert.EqualValues(t, 1, stats.evicted.Load())
	assert.EqualValues(t, 10, stats.added.Load())
	assert.Equal(t, 5, st.LeftNodes)
	assert.Greater(t, st.MemoryBytes, int64(0))

	segs := g.Segments()
	require.Len(t, segs, 3)
	assert.EqualValues(t, []int64{1, 2, 3}, []int64{segs[0].ID, segs[1].ID, segs[2].ID})
	assert.True(t, segs[0].Sealed)
	assert.False(t, segs[2].Sealed)
	assert.Equal(t, 1, segs[2].LiveEdges)
}

func TestGraph_ConcurrentWritersPanic(t *testing.T) {
	g := newTestGraph(t, 2, 2)
	g.writing.Store(true)
	assert.Panics(t, func() { _ = g.AddEdge(1, 2, 0) })
	g.writing.Store(false)
	assert.NoError(t, g.AddEdge(1, 2, 0))
}

func TestGraph_ConcurrentReaders(t *testing.T) {
	g := newTestGraph(t, 4, 64)
	const hubs = 4

	done := make(chan struct{})
	var wg sync.WaitGroup
	var failures atomic.Int64
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-done:
					return
				default:
				}
				hub := NodeID(rng.Intn(hubs))
				for n := range g.LeftNeighbors(hub) {
					if n < 1000 || NodeID(int64(n)%hubs) != hub {
						failures.Add(1)
					}
				}
				for _, n := range g.RandomLeftNeighbors(hub, 4, rng) {
					if NodeID(int64(n)%hubs) != hub {
						failures.Add(1)
					}
				}
				_ = g.Stats()
			}
		}(int64(r))
	}

	for i := 0; i < 5000; i++ {
		right := NodeID(1000 + i)
		require.NoError(t, g.AddEdge(NodeID(int64(right)%hubs), right, 0))
	}
	close(done)
	wg.Wait()
	assert.Zero(t, failures.Load())
	assert.LessOrEqual(t, g.NumEdges(), int64(4*64))
}

func TestGraph_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	edgeGen := gen.SliceOf(gen.Int64Range(0, 20))

	build := func(raw []int64, maxSegments, perSegment int) *Graph {
		cfg := DefaultConfig()
		cfg.MaxSegments = maxSegments
		cfg.MaxEdgesPerSegment = perSegment
		cfg.Left = smallSide()
		cfg.Right = smallSide()
		g, err := New(cfg)
		if err != nil {
			panic(err)
		}
		for i, v := range raw {
			if err := g.AddEdge(NodeID(v%5), NodeID(100+i%7), 0); err != nil {
				panic(err)
			}
		}
		return g
	}

	properties.Property("live edges never exceed the retention bound", prop.ForAll(
		func(raw []int64, maxSegments, perSegment int) bool {
			g := build(raw, maxSegments, perSegment)
			return g.NumEdges() <= int64(maxSegments*perSegment) &&
				g.Stats().Segments <= maxSegments
		},
		edgeGen, gen.IntRange(1, 4), gen.IntRange(1, 5),
	))

	properties.Property("left and right degree totals agree", prop.ForAll(
		func(raw []int64, maxSegments, perSegment int) bool {
			g := build(raw, maxSegments, perSegment)
			left, right := 0, 0
			for n := NodeID(0); n < 5; n++ {
				left += g.LeftDegree(n)
			}
			for n := NodeID(100); n < 107; n++ {
				right += g.RightDegree(n)
			}
			return int64(left) == g.NumEdges() && left == right
		},
		edgeGen, gen.IntRange(1, 4), gen.IntRange(1, 5),
	))

	properties.Property("the newest edge is always retained", prop.ForAll(
		func(raw []int64, maxSegments, perSegment int) bool {
			if len(raw) == 0 {
				return true
			}
			g := build(raw, maxSegments, perSegment)
			i := len(raw) - 1
			left, right := NodeID(raw[i]%5), NodeID(100+i%7)
			return slices.Contains(slices.Collect(g.LeftNeighbors(left)), right) &&
				slices.Contains(slices.Collect(g.RightNeighbors(right)), left)
		},
		edgeGen, gen.IntRange(1, 4), gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
