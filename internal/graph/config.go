package graph

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/23skdu/bigraph/internal/codec"
	"github.com/23skdu/bigraph/internal/segment"
)

// ErrInvalidConfig is wrapped by every construction-time validation error.
var ErrInvalidConfig = errors.New("invalid graph config")

// SideConfig sizes one side's per-node arrays. See segment.GrowthPolicy.
type SideConfig = segment.SideConfig

// Config holds graph construction parameters.
type Config struct {
	// MaxSegments bounds the number of retained segments, and with it the
	// age window and memory of the graph.
	MaxSegments int
	// MaxEdgesPerSegment is the capacity of each segment.
	MaxEdgesPerSegment int

	Left  SideConfig
	Right SideConfig

	// LeftIndexedOnly drops the right-indexed view: right-side reads see an
	// empty graph and memory use roughly halves.
	LeftIndexedOnly bool

	// Codec packs edge types into stored neighbor values. Defaults to
	// codec.Identity.
	Codec codec.EdgeCodec
	// Stats receives operational counters. Defaults to NopStats.
	Stats StatsCollector

	Logger zerolog.Logger
}

// DefaultSideConfig suits a power-law side where most nodes see one or two
// edges per segment.
func DefaultSideConfig() SideConfig {
	return SideConfig{
		ExpectedNumNodes: 1 << 14,
		GrowthPolicy:     segment.DefaultGrowthPolicy(),
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxSegments:        10,
		MaxEdgesPerSegment: 1 << 20,
		Left:               DefaultSideConfig(),
		Right:              DefaultSideConfig(),
		Codec:              codec.Identity{},
		Stats:              NopStats{},
		Logger:             zerolog.Nop(),
	}
}

// Validate checks the configuration. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.ringConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) ringConfig() segment.RingConfig {
	return segment.RingConfig{
		MaxSegments:        c.MaxSegments,
		MaxEdgesPerSegment: c.MaxEdgesPerSegment,
		Left:               c.Left,
		Right:              c.Right,
		LeftIndexedOnly:    c.LeftIndexedOnly,
		Stats:              c.Stats,
		Logger:             c.Logger,
	}
}
