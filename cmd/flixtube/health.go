package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/flixtube/internal/client"
	"github.com/alfredjeanlab/flixtube/internal/server"
	"github.com/alfredjeanlab/flixtube/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the history service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		grpcAddr, _ := cmd.Flags().GetString("grpc")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if grpcAddr != "" {
			return grpcHealth(ctx, cmd.OutOrStdout(), grpcAddr)
		}

		resp, err := historyClient.Health(ctx)
		if resp == nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if perr := printJSON(cmd.OutOrStdout(), resp); perr != nil {
				return perr
			}
		} else {
			printHealth(cmd.OutOrStdout(), resp)
		}

		if !resp.OK() {
			return fmt.Errorf("unhealthy: %s", resp.Status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().String("grpc", "", "query the gRPC health service at this address instead of HTTP")
	healthCmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
}

func grpcHealth(ctx context.Context, w io.Writer, addr string) error {
	c, err := client.NewGRPCHealthClient(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := c.Check(ctx, server.HistoryServiceName)
	if err != nil {
		return err
	}
	serving := status == healthpb.HealthCheckResponse_SERVING
	if jsonOutput {
		if err := printJSON(w, map[string]string{"status": status.String()}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Health: %s\n", ui.RenderStatus(status.String(), serving))
	}
	if !serving {
		return fmt.Errorf("unhealthy: %s", status)
	}
	return nil
}
