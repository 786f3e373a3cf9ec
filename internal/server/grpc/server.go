// Package grpc hosts the authd gRPC endpoint: the listener lifecycle, the
// access-token interceptor, and the health service consumed by deployment
// probes. Service handlers register through Register before Run is called.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/shelfmark/authd/internal/logging"
	"github.com/shelfmark/authd/internal/token"
)

// Server owns the gRPC listener. Every registered service sits behind the
// access-token interceptor unless its methods are exempt.
type Server struct {
	address string
	logger  logging.Logger
	codec   *token.Codec
	health  *health.Server

	registrations []func(*grpc.Server)
}

func NewServer(address string, codec *token.Codec, logger logging.Logger) *Server {
	return &Server{
		address: address,
		logger:  logger.With("module", "grpc_server"),
		codec:   codec,
		health:  health.NewServer(),
	}
}

// Register queues a service registration to run against the underlying
// grpc.Server when it is created in Run.
func (s *Server) Register(fn func(*grpc.Server)) {
	s.registrations = append(s.registrations, fn)
}

// Run serves until ctx is cancelled, then drains in-flight calls.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	for _, fn := range s.registrations {
		fn(srv)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping gRPC server")
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "starting gRPC server", "address", s.address)
	return srv.Serve(listen)
}
