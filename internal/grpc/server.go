package grpc

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/weiawesome/trailchat/pkg/log"
)

// ServiceName is the name reported by the health service.
const ServiceName = "trailchat.Chat"

// Server is the gRPC listener exposing the standard health service.
type Server struct {
	*grpc.Server
	health *health.Server
	addr   string
}

// StartGRPCServer listens on addr and serves until Stop is called.
func StartGRPCServer(addr string, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	srv := &Server{Server: s, health: hs, addr: lis.Addr().String()}

	go func() {
		l := log.L()
		l.Info().Str("address", srv.addr).Msg("grpc server listening")
		if err := s.Serve(lis); err != nil {
			l.Error().Err(err).Msg("grpc server error")
		}
	}()

	return srv, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.addr
}

// Stop reports NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.GracefulStop()
}
