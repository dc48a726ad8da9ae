// Package server hosts the engagement process's gRPC operations surface:
// the standard health service behind request-id, tracing and metrics
// interceptors.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/intercept-sim/internal/logging"
	"github.com/signalsfoundry/intercept-sim/internal/observability"
)

// ServiceName is the health-check service name reported for the engagement.
const ServiceName = "intercept.Engagement"

// Options configures a Server.
type Options struct {
	Logger  logging.Logger
	Metrics *observability.RPCCollector
	// Tracing installs the otelgrpc stats handler.
	Tracing bool
}

// Server wraps a grpc.Server with a health service.
type Server struct {
	GRPC   *grpc.Server
	health *health.Server
	log    logging.Logger
}

// New builds the gRPC server. The engagement starts NOT_SERVING until
// SetServing(true) is called.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}

	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if opts.Metrics != nil {
		interceptors = append(interceptors, opts.Metrics.UnaryServerInterceptor())
	}
	serverOpts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(interceptors...)}
	if opts.Tracing {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}

	gs := grpc.NewServer(serverOpts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{GRPC: gs, health: hs, log: log}
}

// SetServing flips the engagement health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.log.Debug(context.Background(), "health status changed", logging.String("status", status.String()))
}

// Serve blocks serving on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	err := s.GRPC.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop drains in-flight RPCs, forcing a stop after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GRPC.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.GRPC.Stop()
	}
}
