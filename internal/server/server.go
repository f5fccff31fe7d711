// Package server exposes the history and streaming services over HTTP and
// the history service's health over gRPC.
package server

import (
	"encoding/json"
	"log/slog"

	"github.com/alfredjeanlab/flixtube/internal/history"
	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// StateReporter reports the connection state of the history subscriber.
type StateReporter interface {
	State() history.State
}

// HistoryServer serves the viewing history.
type HistoryServer struct {
	store      store.HistoryStore
	subscriber StateReporter
	sseHub     *sseHub
	logger     *slog.Logger
}

// NewHistoryServer returns a HistoryServer reading from s. subscriber may be
// nil, in which case health only reflects the store.
func NewHistoryServer(s store.HistoryStore, subscriber StateReporter, logger *slog.Logger) *HistoryServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryServer{
		store:      s,
		subscriber: subscriber,
		sseHub:     newSSEHub(),
		logger:     logger,
	}
}

// RecordAdded fans a newly stored record out to live stream clients. It is
// meant to be passed as history.Options.OnRecorded.
func (s *HistoryServer) RecordAdded(rec *model.HistoryRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("failed to marshal record for SSE broadcast", "id", rec.ID, "error", err)
		return
	}
	s.sseHub.broadcast(rec.VideoID, payload)
}
