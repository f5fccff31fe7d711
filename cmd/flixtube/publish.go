package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/flixtube/internal/config"
	"github.com/alfredjeanlab/flixtube/internal/events"
)

var publishCmd = &cobra.Command{
	Use:     "publish <video-id>...",
	Short:   "Announce views directly on the broker, bypassing the streaming service",
	GroupID: "viewing",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.NATSURL == "" {
			return fmt.Errorf("FLIXTUBE_NATS_URL is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ConnectTimeout)
		defer cancel()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		publisher, err := events.NewNATSPublisher(ctx, cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		return publishViews(ctx, cmd.OutOrStdout(), publisher, args)
	},
}

// publishViews publishes one viewed event per id and closes p, which waits
// for the broker to acknowledge them.
func publishViews(ctx context.Context, w io.Writer, p events.Publisher, videoIDs []string) error {
	start := time.Now()
	for _, id := range videoIDs {
		if err := events.PublishViewed(ctx, p, id); err != nil {
			p.Close()
			return fmt.Errorf("publishing view of %q: %w", id, err)
		}
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("flushing publisher: %w", err)
	}
	fmt.Fprintf(w, "Published %d view(s) in %s\n", len(videoIDs), time.Since(start).Round(time.Millisecond))
	return nil
}
