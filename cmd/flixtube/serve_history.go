package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/flixtube/internal/config"
	"github.com/alfredjeanlab/flixtube/internal/events"
	"github.com/alfredjeanlab/flixtube/internal/history"
	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/server"
	"github.com/alfredjeanlab/flixtube/internal/store"
	"github.com/alfredjeanlab/flixtube/internal/store/postgres"
	historysync "github.com/alfredjeanlab/flixtube/internal/sync"
)

var serveHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Run the history service: record viewed events and serve the history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.ValidateHistory(); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing store", "err", err)
			}
		}()

		grpcServer, healthServer := server.NewGRPCServer(logger)

		var historyServer *server.HistoryServer
		consumer := history.NewConsumer(
			events.NATSDialer(cfg.NATSURL, logger),
			st,
			history.Options{
				Queue: events.QueueOptions{
					Name:            cfg.HistoryQueue,
					AckWait:         cfg.AckWait,
					MaxDeliver:      cfg.MaxDeliver,
					RedeliveryDelay: cfg.RedeliveryDelay,
				},
				PersistTimeout: cfg.PersistTimeout,
				OnStateChange:  server.HealthReporter(healthServer),
				OnRecorded:     func(rec *model.HistoryRecord) { historyServer.RecordAdded(rec) },
			},
			logger,
		)
		historyServer = server.NewHistoryServer(st, consumer, logger)

		// The service cannot do its job without a subscription.
		openCtx, cancelOpen := context.WithTimeout(ctx, cfg.ConnectTimeout)
		err = consumer.Open(openCtx)
		cancelOpen()
		if err != nil {
			return fmt.Errorf("starting history subscriber: %w", err)
		}
		defer consumer.Close()

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer, httpErr := startHTTP(logger, cfg.HTTPAddr, historyServer.NewHTTPHandler())

		scheduler := startSync(ctx, cfg, st, logger)

		runErr := make(chan error, 1)
		go func() { runErr <- consumer.Run(ctx) }()

		logger.Info("history service started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"queue", consumer.QueueName(),
		)

		var exitErr error
		select {
		case <-ctx.Done():
			logger.Info("received signal, shutting down")
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				exitErr = fmt.Errorf("history subscriber stopped: %w", err)
				logger.Error("history subscriber stopped", "err", err)
			}
		case err := <-httpErr:
			exitErr = err
		}

		// Stop consuming first so no delivery is handled while the
		// servers go away.
		if err := consumer.Close(); err != nil {
			logger.Error("error closing history subscriber", "err", err)
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		shutdownHTTP(logger, httpServer)

		logger.Info("shutdown complete")
		return exitErr
	},
}

// startSync starts the export scheduler when an interval and at least one
// destination are configured.
func startSync(ctx context.Context, cfg *config.Config, st store.HistoryStore, logger *slog.Logger) *historysync.Scheduler {
	if cfg.SyncInterval <= 0 {
		return nil
	}

	var dests []historysync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := historysync.NewS3Destination(ctx, historysync.S3Config{
			Bucket:   cfg.SyncS3Bucket,
			Key:      cfg.SyncS3Key,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, historysync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	if len(dests) == 0 {
		return nil
	}

	scheduler := historysync.NewScheduler(st, dests, cfg.SyncInterval, logger)
	scheduler.Start()
	logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
	return scheduler
}
