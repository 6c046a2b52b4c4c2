// Package limiter throttles Flight requests with a token bucket.
package limiter

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/bigraph/internal/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	RPS   int `envconfig:"RATE_LIMIT_RPS" default:"0"`   // 0 means disabled
	Burst int `envconfig:"RATE_LIMIT_BURST" default:"0"` // 0 means use RPS
}

// RateLimiter wraps the token bucket limiter
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg Config) *RateLimiter {
	if cfg.RPS <= 0 {
		return &RateLimiter{enabled: false}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RPS
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		enabled: true,
	}
}

// Enabled reports whether requests are throttled at all.
func (l *RateLimiter) Enabled() bool { return l.enabled }

// wait blocks for a token. A request whose wait would outlive its deadline
// is rejected with ResourceExhausted; a cancelled request keeps its own
// status.
func (l *RateLimiter) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return status.FromContextError(err).Err()
		}
		metrics.RateLimitRequestsTotal.WithLabelValues("throttled").Inc()
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
	return nil
}

// UnaryInterceptor returns a gRPC unary interceptor
func (l *RateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !l.enabled {
			return handler(ctx, req)
		}
		if err := l.wait(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a gRPC stream interceptor. Every Flight call
// is a stream, so this is the one the server installs.
func (l *RateLimiter) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !l.enabled {
			return handler(srv, ss)
		}
		if err := l.wait(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
