package health

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the booking backend.
const ServiceName = "studiotblack.Booking"

// GRPC publishes the checker's result through grpc.health.v1.
type GRPC struct {
	checker  *Checker
	server   *health.Server
	interval time.Duration
	logger   *zerolog.Logger
}

func NewGRPC(checker *Checker, interval time.Duration, logger *zerolog.Logger) *GRPC {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "grpc_health").Logger()
	return &GRPC{checker: checker, server: health.NewServer(), interval: interval, logger: &l}
}

// Server returns the health service for registration.
func (g *GRPC) Server() healthpb.HealthServer {
	return g.server
}

// Refresh runs the checks once and updates the serving status.
func (g *GRPC) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if failed := g.checker.Run(ctx); len(failed) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		g.logger.Warn().Interface("failed", failed).Msg("readiness checks failing")
	}
	g.server.SetServingStatus("", status)
	g.server.SetServingStatus(ServiceName, status)
}

// Serve listens on addr and keeps the status fresh until ctx is done.
func (g *GRPC) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(g.logUnary))
	healthpb.RegisterHealthServer(srv, g.server)

	g.Refresh(ctx)
	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.server.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				g.Refresh(ctx)
			}
		}
	}()

	g.logger.Info().Str("addr", addr).Msg("grpc health listening")
	return srv.Serve(lis)
}

func (g *GRPC) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	g.logger.Debug().Str("method", info.FullMethod).Dur("took", time.Since(start)).Err(err).Msg("grpc call")
	return resp, err
}
