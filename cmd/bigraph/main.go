// Command bigraph serves an in-memory, time-windowed bipartite graph over
// Arrow Flight and exposes Prometheus metrics and a health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/23skdu/bigraph/internal/graph"
	"github.com/23skdu/bigraph/internal/health"
	"github.com/23skdu/bigraph/internal/limiter"
	"github.com/23skdu/bigraph/internal/logging"
	"github.com/23skdu/bigraph/internal/metrics"
	"github.com/23skdu/bigraph/internal/server"
)

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bigraph: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "bigraph: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("Server stopped")
}

// run serves Flight and metrics until ctx is cancelled or either server
// fails.
func run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	gcfg, err := cfg.GraphConfig(metrics.NewCollector(), logging.Component(logger, "graph"))
	if err != nil {
		return err
	}
	g, err := graph.New(gcfg)
	if err != nil {
		return err
	}

	lim := limiter.NewRateLimiter(cfg.LimiterConfig())
	grpcServer := grpc.NewServer(cfg.ServerOptions(lim)...)
	server.NewGraphServer(g, cfg.FlightConfig(), logging.Component(logger, "flight")).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	hm := health.NewManager(logging.Component(logger, "health"))
	hm.Register(health.NewGraphChecker(g, cfg.MemoryWarnBytes))
	mux.Handle("/healthz", hm.HTTPHandler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info().
			Str("address", cfg.ListenAddr).
			Int("max_segments", cfg.MaxSegments).
			Int("max_edges_per_segment", cfg.MaxEdgesPerSegment).
			Bool("rate_limited", lim.Enabled()).
			Msg("Flight server starting")
		return grpcServer.Serve(lis)
	})

	eg.Go(func() error {
		logger.Info().Str("address", cfg.MetricsAddr).Msg("Metrics server starting")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return metricsServer.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
