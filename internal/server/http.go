package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/flixtube/internal/history"
	"github.com/alfredjeanlab/flixtube/internal/metrics"
	"github.com/alfredjeanlab/flixtube/internal/model"
)

// healthCheckTimeout bounds the store ping behind GET /v1/health.
const healthCheckTimeout = 2 * time.Second

// NewHTTPHandler returns an http.Handler with all history routes registered.
func (s *HistoryServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /videos", s.handleListVideos)
	mux.HandleFunc("GET /v1/history/stream", s.handleHistoryStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return LoggingMiddleware(s.logger, RecoveryMiddleware(s.logger, mux))
}

// handleListVideos handles GET /videos.
func (s *HistoryServer) handleListVideos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.HistoryFilter{VideoID: q.Get("videoId")}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, p.name+" must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	records, total, err := s.store.ListRecords(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}

	// Ensure videos is never null in JSON output.
	if records == nil {
		records = []*model.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"videos": records,
		"total":  total,
	})
}

// handleHealth handles GET /v1/health. It reports 503 while the store is
// unreachable or the subscriber is not consuming.
func (s *HistoryServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		body["status"] = "unavailable"
		body["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.subscriber != nil {
		state := s.subscriber.State()
		body["subscriber"] = state.String()
		if state != history.StateConsuming {
			body["status"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, body)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
