package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/flixtube/internal/config"
	"github.com/alfredjeanlab/flixtube/internal/events"
	"github.com/alfredjeanlab/flixtube/internal/server"
)

var serveStreamingNoBroker bool

var serveStreamingCmd = &cobra.Command{
	Use:   "streaming",
	Short: "Run the streaming service: proxy playback and announce views",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.ValidateStreaming(!serveStreamingNoBroker); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		var publisher events.Publisher = &events.NoopPublisher{}
		if serveStreamingNoBroker {
			logger.Warn("running without a broker, views are not recorded")
		} else {
			connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			publisher, err = events.NewNATSPublisher(connectCtx, cfg.NATSURL, logger)
			cancel()
			if err != nil {
				return fmt.Errorf("starting viewed publisher: %w", err)
			}
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("error closing publisher", "err", err)
			}
		}()

		streaming, err := server.NewStreamingServer(publisher, cfg.StorageURL, &http.Client{}, logger)
		if err != nil {
			return err
		}

		httpServer, httpErr := startHTTP(logger, cfg.HTTPAddr, streaming.NewHTTPHandler())
		logger.Info("streaming service started", "http_addr", cfg.HTTPAddr, "storage_url", cfg.StorageURL)

		var exitErr error
		select {
		case <-ctx.Done():
			logger.Info("received signal, shutting down")
		case exitErr = <-httpErr:
		}

		shutdownHTTP(logger, httpServer)
		logger.Info("shutdown complete")
		return exitErr
	},
}

func init() {
	serveStreamingCmd.Flags().BoolVar(&serveStreamingNoBroker, "no-broker", false, "serve playback without announcing views")
}
