// Package client provides Go clients for the flixtube services: the history
// REST API, the streaming endpoint and the gRPC health service.
package client

import (
	"context"
	"io"

	"github.com/alfredjeanlab/flixtube/internal/model"
)

// HistoryClient is what the flixtube CLI uses to read viewing history. It is
// implemented by HTTPClient.
type HistoryClient interface {
	ListHistory(ctx context.Context, filter model.HistoryFilter) (*ListHistoryResponse, error)
	Health(ctx context.Context) (*HealthResponse, error)
	Close() error
}

// Player starts playback of a video and copies the stream into w.
type Player interface {
	Play(ctx context.Context, videoID string, w io.Writer) (int64, error)
}

// ListHistoryResponse is the body of GET /videos.
type ListHistoryResponse struct {
	Videos []*model.HistoryRecord `json:"videos"`
	Total  int                    `json:"total"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Subscriber string `json:"subscriber,omitempty"`
	Store      string `json:"store,omitempty"`
}

// OK reports whether the service declared itself healthy.
func (h *HealthResponse) OK() bool { return h.Status == "ok" }
