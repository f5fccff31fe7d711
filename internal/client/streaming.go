package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StreamingClient plays videos through the streaming service. Every Play
// counts as one view.
type StreamingClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Player = (*StreamingClient)(nil)

func NewStreamingClient(baseURL string) *StreamingClient {
	return &StreamingClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Play requests GET /video?id=videoID and copies the body into w. Non-2xx
// responses are returned as *APIError without writing to w.
func (c *StreamingClient) Play(ctx context.Context, videoID string, w io.Writer) (int64, error) {
	if strings.TrimSpace(videoID) == "" {
		return 0, fmt.Errorf("video id is required")
	}
	u := c.baseURL + "/video?" + url.Values{"id": {videoID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, newAPIError(resp.StatusCode, body)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("reading stream: %w", err)
	}
	return n, nil
}
