package main

import (
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/23skdu/bigraph/internal/limiter"
)

// BuildGRPCServerOptions returns grpc.ServerOption slice for server configuration.
// Combines keepalive settings with message size and flow control options.
func (c *Config) BuildGRPCServerOptions() []grpc.ServerOption {
	kaParams := keepalive.ServerParameters{
		Time:    c.KeepAliveTime,
		Timeout: c.KeepAliveTimeout,
	}
	kaPolicy := keepalive.EnforcementPolicy{
		MinTime:             c.KeepAliveMinTime,
		PermitWithoutStream: c.KeepAlivePermitWithoutStream,
	}

	return []grpc.ServerOption{
		grpc.KeepaliveParams(kaParams),
		grpc.KeepaliveEnforcementPolicy(kaPolicy),
		grpc.MaxConcurrentStreams(c.GRPCMaxConcurrentStreams),
		grpc.InitialWindowSize(c.GRPCInitialWindowSize),
		grpc.InitialConnWindowSize(c.GRPCInitialConnWindowSize),
		grpc.MaxRecvMsgSize(c.GRPCMaxRecvMsgSize),
		grpc.MaxSendMsgSize(c.GRPCMaxSendMsgSize),
	}
}

// ServerOptions is BuildGRPCServerOptions plus the rate limiter
// interceptors.
func (c *Config) ServerOptions(lim *limiter.RateLimiter) []grpc.ServerOption {
	return append(c.BuildGRPCServerOptions(),
		grpc.ChainUnaryInterceptor(lim.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(lim.StreamInterceptor()),
	)
}

// ValidateGRPCConfig checks if the gRPC configuration is valid.
func (c *Config) ValidateGRPCConfig() error {
	if c.GRPCMaxConcurrentStreams == 0 {
		return errors.New("grpc_max_concurrent_streams must be > 0")
	}
	if c.GRPCInitialWindowSize < 0 {
		return errors.New("grpc_initial_window_size must be >= 0")
	}
	if c.GRPCInitialConnWindowSize < 0 {
		return errors.New("grpc_initial_conn_window_size must be >= 0")
	}
	if c.GRPCMaxRecvMsgSize < 0 {
		return errors.New("grpc_max_recv_msg_size must be >= 0")
	}
	if c.GRPCMaxSendMsgSize < 0 {
		return errors.New("grpc_max_send_msg_size must be >= 0")
	}
	return nil
}
