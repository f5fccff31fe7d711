// Package sync periodically exports the viewing history as JSONL to
// external destinations (S3-compatible buckets, git repositories).
package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/flixtube/internal/metrics"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// Destination receives every export.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// Scheduler exports the history store on a fixed interval.
type Scheduler struct {
	store        store.HistoryStore
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(s store.HistoryStore, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start runs one export right away and then one per interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for {
			s.SyncOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.interval):
			}
		}
	}()
}

// Stop cancels the scheduler and waits for a running export to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// SyncOnce exports the history and writes it to every destination. It
// returns the number of destinations that did not receive the export.
func (s *Scheduler) SyncOnce(ctx context.Context) int {
	start := time.Now()

	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		metrics.HistoryExports.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("history export failed", "err", err)
		return len(s.destinations)
	}

	failed := 0
	for _, dest := range s.destinations {
		result := metrics.ResultOK
		if err := dest.Write(ctx, buf.Bytes()); err != nil {
			failed++
			result = metrics.ResultError
			s.logger.Error("writing history export", "destination", fmt.Sprintf("%T", dest), "err", err)
		}
		metrics.HistoryExports.WithLabelValues(result).Inc()
	}

	s.logger.Info("history export done",
		"destinations", len(s.destinations),
		"failed", failed,
		"bytes", buf.Len(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return failed
}
