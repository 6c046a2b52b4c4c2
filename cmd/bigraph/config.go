package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/23skdu/bigraph/internal/codec"
	"github.com/23skdu/bigraph/internal/graph"
	"github.com/23skdu/bigraph/internal/limiter"
	"github.com/23skdu/bigraph/internal/logging"
	"github.com/23skdu/bigraph/internal/segment"
	"github.com/23skdu/bigraph/internal/server"
)

// envPrefix prefixes every environment variable, e.g. BIGRAPH_MAX_SEGMENTS.
const envPrefix = "BIGRAPH"

// Config is the process configuration, read from the environment.
type Config struct {
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:3000"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:"0.0.0.0:9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Graph retention and layout
	MaxSegments        int  `envconfig:"MAX_SEGMENTS" default:"10"`
	MaxEdgesPerSegment int  `envconfig:"MAX_EDGES_PER_SEGMENT" default:"1048576"`
	LeftExpectedNodes  int  `envconfig:"LEFT_EXPECTED_NODES" default:"16384"`
	RightExpectedNodes int  `envconfig:"RIGHT_EXPECTED_NODES" default:"16384"`
	LeftIndexedOnly    bool `envconfig:"LEFT_INDEXED_ONLY" default:"false"`

	// /healthz reports degraded above this many bytes of live segments; 0 disables
	MemoryWarnBytes int64 `envconfig:"MEMORY_WARN_BYTES" default:"0"`

	// Per-node array growth, shared by both sides
	InitialDegree     int     `envconfig:"INITIAL_DEGREE" default:"2"`
	GrowthFactor      float64 `envconfig:"GROWTH_FACTOR" default:"2.0"`
	ExpectedMaxDegree int     `envconfig:"EXPECTED_MAX_DEGREE" default:"65536"`

	// EdgeTypeBits reserves high bits of each stored neighbor for the edge
	// type. 0 stores plain node ids.
	EdgeTypeBits uint `envconfig:"EDGE_TYPE_BITS" default:"0"`

	// Flight endpoints
	MinChunkRows  int `envconfig:"FLIGHT_MIN_CHUNK_ROWS" default:"256"`
	MaxChunkRows  int `envconfig:"FLIGHT_MAX_CHUNK_ROWS" default:"65536"`
	MaxSampleSize int `envconfig:"FLIGHT_MAX_SAMPLE_SIZE" default:"1000000"`

	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" default:"0"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" default:"0"`

	// gRPC
	KeepAliveTime                time.Duration `envconfig:"KEEPALIVE_TIME" default:"2h"`
	KeepAliveTimeout             time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	KeepAliveMinTime             time.Duration `envconfig:"KEEPALIVE_MIN_TIME" default:"5m"`
	KeepAlivePermitWithoutStream bool          `envconfig:"KEEPALIVE_PERMIT_WITHOUT_STREAM" default:"false"`
	GRPCMaxConcurrentStreams     uint32        `envconfig:"GRPC_MAX_CONCURRENT_STREAMS" default:"250"`
	GRPCInitialWindowSize        int32         `envconfig:"GRPC_INITIAL_WINDOW_SIZE" default:"1048576"`
	GRPCInitialConnWindowSize    int32         `envconfig:"GRPC_INITIAL_CONN_WINDOW_SIZE" default:"1048576"`
	GRPCMaxRecvMsgSize           int           `envconfig:"GRPC_MAX_RECV_MSG_SIZE" default:"67108864"`
	GRPCMaxSendMsgSize           int           `envconfig:"GRPC_MAX_SEND_MSG_SIZE" default:"67108864"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Config validation errors
var (
	ErrInvalidListenAddr      = errors.New("listen_addr cannot be empty")
	ErrInvalidMetricsAddr     = errors.New("metrics_addr cannot be empty")
	ErrInvalidLogFormat       = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel        = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidMaxSegments     = errors.New("max_segments must be positive")
	ErrInvalidSegmentCapacity = errors.New("max_edges_per_segment must be positive")
	ErrInvalidEdgeTypeBits    = errors.New("edge_type_bits must be between 0 and 8")
	ErrInvalidMemoryWarnBytes = errors.New("memory_warn_bytes cannot be negative")
	ErrInvalidChunkRows       = errors.New("flight chunk rows must be positive and min <= max")
	ErrInvalidKeepAliveTime   = errors.New("keepalive_time must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown_timeout must be positive")
)

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		ListenAddr:         "0.0.0.0:3000",
		MetricsAddr:        "0.0.0.0:9090",
		LogFormat:          "json",
		LogLevel:           "info",
		MaxSegments:        10,
		MaxEdgesPerSegment: 1 << 20,
		LeftExpectedNodes:  1 << 14,
		RightExpectedNodes: 1 << 14,
		InitialDegree:      2,
		GrowthFactor:       2.0,
		ExpectedMaxDegree:  1 << 16,
		MinChunkRows:       256,
		MaxChunkRows:       65536,
		MaxSampleSize:      1_000_000,

		KeepAliveTime:             2 * time.Hour,
		KeepAliveTimeout:          20 * time.Second,
		KeepAliveMinTime:          5 * time.Minute,
		GRPCMaxConcurrentStreams:  250,
		GRPCInitialWindowSize:     1 << 20,
		GRPCInitialConnWindowSize: 1 << 20,
		GRPCMaxRecvMsgSize:        64 << 20,
		GRPCMaxSendMsgSize:        64 << 20,

		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig reads the configuration from BIGRAPH_* environment variables
// and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.ValidateGRPCConfig(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidateConfig validates the configuration and returns an error if invalid.
// Graph sizing is checked again, in full, by graph.New.
func ValidateConfig(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if cfg.MetricsAddr == "" {
		return ErrInvalidMetricsAddr
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" && cfg.LogFormat != "text" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	if cfg.MaxSegments <= 0 {
		return ErrInvalidMaxSegments
	}
	if cfg.MaxEdgesPerSegment <= 0 {
		return ErrInvalidSegmentCapacity
	}
	if cfg.EdgeTypeBits > codec.MaxTypeBits {
		return ErrInvalidEdgeTypeBits
	}
	if cfg.MemoryWarnBytes < 0 {
		return ErrInvalidMemoryWarnBytes
	}
	if cfg.MinChunkRows <= 0 || cfg.MaxChunkRows < cfg.MinChunkRows {
		return ErrInvalidChunkRows
	}
	if cfg.KeepAliveTime <= 0 {
		return ErrInvalidKeepAliveTime
	}
	if cfg.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}
	return nil
}

// EdgeCodec returns the codec selected by EdgeTypeBits.
func (c *Config) EdgeCodec() (codec.EdgeCodec, error) {
	if c.EdgeTypeBits == 0 {
		return codec.Identity{}, nil
	}
	return codec.NewBitMask(c.EdgeTypeBits)
}

// GraphConfig maps the process configuration onto graph.Config.
func (c *Config) GraphConfig(stats graph.StatsCollector, logger zerolog.Logger) (graph.Config, error) {
	edgeCodec, err := c.EdgeCodec()
	if err != nil {
		return graph.Config{}, err
	}
	policy := segment.GrowthPolicy{
		InitialDegree:     c.InitialDegree,
		GrowthFactor:      c.GrowthFactor,
		ExpectedMaxDegree: c.ExpectedMaxDegree,
	}
	return graph.Config{
		MaxSegments:        c.MaxSegments,
		MaxEdgesPerSegment: c.MaxEdgesPerSegment,
		Left:               graph.SideConfig{ExpectedNumNodes: c.LeftExpectedNodes, GrowthPolicy: policy},
		Right:              graph.SideConfig{ExpectedNumNodes: c.RightExpectedNodes, GrowthPolicy: policy},
		LeftIndexedOnly:    c.LeftIndexedOnly,
		Codec:              edgeCodec,
		Stats:              stats,
		Logger:             logger,
	}, nil
}

// LoggingConfig maps the log settings onto logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Format: c.LogFormat, Level: c.LogLevel}
}

// LimiterConfig maps the rate limit settings onto limiter.Config.
func (c *Config) LimiterConfig() limiter.Config {
	return limiter.Config{RPS: c.RateLimitRPS, Burst: c.RateLimitBurst}
}

// FlightConfig maps the Flight settings onto server.Config.
func (c *Config) FlightConfig() server.Config {
	return server.Config{
		MinChunkRows:  c.MinChunkRows,
		MaxChunkRows:  c.MaxChunkRows,
		MaxSampleSize: c.MaxSampleSize,
	}
}
