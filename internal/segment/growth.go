package segment

import (
	"fmt"
	"math"
	"sort"

	bgerrors "github.com/23skdu/bigraph/internal/errors"
)

// GrowthPolicy sizes per-node neighbor arrays. Most nodes in a power-law
// graph have a handful of edges, so arrays start small and grow
// geometrically; the few hubs amortize their copies.
type GrowthPolicy struct {
	// InitialDegree is the capacity allocated for a node's first edge in a
	// segment.
	InitialDegree int
	// GrowthFactor multiplies the capacity on overflow. Must be > 1.
	GrowthFactor float64
	// ExpectedMaxDegree bounds the precomputed capacity ladder. Growth past
	// it keeps multiplying.
	ExpectedMaxDegree int

	ladder []int
}

// DefaultGrowthPolicy doubles from a capacity of 2.
func DefaultGrowthPolicy() GrowthPolicy {
	return GrowthPolicy{
		InitialDegree:     2,
		GrowthFactor:      2.0,
		ExpectedMaxDegree: 1 << 16,
	}
}

// Validate checks the policy parameters.
func (p GrowthPolicy) Validate() error {
	if p.InitialDegree < 1 {
		return bgerrors.NewConfigurationError("growth_policy",
			fmt.Sprintf("initial degree must be >= 1, got %d", p.InitialDegree))
	}
	if !(p.GrowthFactor > 1) || math.IsInf(p.GrowthFactor, 0) {
		return bgerrors.NewConfigurationError("growth_policy",
			fmt.Sprintf("growth factor must be a finite value > 1, got %v", p.GrowthFactor))
	}
	if p.ExpectedMaxDegree < 0 {
		return bgerrors.NewConfigurationError("growth_policy",
			fmt.Sprintf("expected max degree must be >= 0, got %d", p.ExpectedMaxDegree))
	}
	return nil
}

// compile precomputes the capacity ladder. Callers validate first.
func (p GrowthPolicy) compile() GrowthPolicy {
	p.ladder = p.ladder[:0:0]
	c := p.InitialDegree
	p.ladder = append(p.ladder, c)
	for c < p.ExpectedMaxDegree {
		c = p.grow(c)
		p.ladder = append(p.ladder, c)
	}
	return p
}

func (p GrowthPolicy) compiled() bool { return len(p.ladder) > 0 }

// NextCapacity returns the capacity to use once an array of capacity cur is
// full. The result is always strictly larger than cur.
func (p GrowthPolicy) NextCapacity(cur int) int {
	if cur < p.InitialDegree {
		return p.InitialDegree
	}
	if i := sort.SearchInts(p.ladder, cur+1); i < len(p.ladder) {
		return p.ladder[i]
	}
	return p.grow(cur)
}

func (p GrowthPolicy) grow(cur int) int {
	next := int(math.Ceil(float64(cur) * p.GrowthFactor))
	if next <= cur {
		next = cur + 1
	}
	return next
}
