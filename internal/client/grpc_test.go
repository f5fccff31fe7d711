package client

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestGRPCHealthClient_Check(t *testing.T) {
	hs := health.NewServer()
	hs.SetServingStatus("flixtube.history", healthpb.HealthCheckResponse_NOT_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(lis)
	defer srv.Stop()

	c, err := NewGRPCHealthClient(lis.Addr().String())
	if err != nil {
		t.Fatalf("NewGRPCHealthClient: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	got, err := c.Check(ctx, "flixtube.history")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", got)
	}

	hs.SetServingStatus("flixtube.history", healthpb.HealthCheckResponse_SERVING)
	if got, _ := c.Check(ctx, "flixtube.history"); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", got)
	}

	if _, err := c.Check(ctx, "unknown.service"); err == nil {
		t.Error("expected error for unregistered service")
	}
}
