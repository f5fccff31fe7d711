package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/flixtube/internal/events"
	"github.com/alfredjeanlab/flixtube/internal/metrics"
)

// hopHeaders are connection-level headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StreamingServer plays videos by forwarding to video storage and announces
// every playback on the viewed exchange.
type StreamingServer struct {
	publisher events.Publisher
	storage   *url.URL
	client    *http.Client
	logger    *slog.Logger
}

// NewStreamingServer returns a StreamingServer forwarding to storageURL.
// client may be nil to use http.DefaultClient.
func NewStreamingServer(p events.Publisher, storageURL string, client *http.Client, logger *slog.Logger) (*StreamingServer, error) {
	u, err := url.Parse(storageURL)
	if err != nil {
		return nil, fmt.Errorf("parse storage URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("storage URL must be absolute")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamingServer{publisher: p, storage: u, client: client, logger: logger}, nil
}

// NewHTTPHandler returns an http.Handler with all streaming routes registered.
func (s *StreamingServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /video", s.handleVideo)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return LoggingMiddleware(s.logger, RecoveryMiddleware(s.logger, mux))
}

// handleVideo handles GET /video?id=<video id>. The response from storage is
// relayed as is. The viewed event is published whatever storage answers, and
// a failed publish never fails playback.
func (s *StreamingServer) handleVideo(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("id")
	if strings.TrimSpace(videoID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	upstream := s.storage.JoinPath("video")
	upstream.RawQuery = url.Values{"id": {videoID}}.Encode()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstream.String(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build storage request")
		return
	}
	copyHeaders(req.Header, r.Header)

	if err := events.PublishViewed(r.Context(), s.publisher, videoID); err != nil {
		s.logger.Warn("failed to publish viewed event", "video_id", videoID, "error", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("video storage unreachable", "video_id", videoID, "error", err)
		writeError(w, http.StatusBadGateway, "video storage unavailable")
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("video stream interrupted", "video_id", videoID, "error", err)
	}
}

// handleHealth handles GET /v1/health.
func (s *StreamingServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}
