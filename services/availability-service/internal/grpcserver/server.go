// Package grpcserver runs the service's gRPC endpoint. It only carries the
// standard health service so meshes and load balancers can check the process.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/slotreflow/libs/grpcx"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health entry reported next to the overall "" entry.
const ServiceName = "slotreflow.availability.v1"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func New(logger *slog.Logger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcx.UnaryServerRecover(logger),
			grpcx.UnaryServerRequestID(),
			grpcx.UnaryServerLogging(logger),
		),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{grpc: srv, health: hs, logger: logger}
}

// SetServing flips every health entry to SERVING.
func (s *Server) SetServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Serve accepts on lis until ctx is done, then reports NOT_SERVING and drains
// in-flight calls.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.logger.Error("grpc server error", "err", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.logger.Info("grpc server stopped")
	return nil
}
