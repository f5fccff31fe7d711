package server

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/flixtube/internal/history"
)

// HistoryServiceName is the service name reported by the gRPC health server.
const HistoryServiceName = "flixtube.history"

// NewGRPCServer returns a gRPC server exposing the health service and
// reflection, together with its health server. Every service starts
// NOT_SERVING.
func NewGRPCServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryRecovery(logger), UnaryLogging(logger)),
		grpc.ChainStreamInterceptor(StreamRecovery(logger)),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HistoryServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

// HealthReporter returns a history.Options.OnStateChange hook that reports
// SERVING exactly while the subscriber is consuming.
func HealthReporter(hs *health.Server) func(history.State) {
	return func(s history.State) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if s == history.StateConsuming {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(HistoryServiceName, status)
	}
}
