package server

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseReplaySize is how many recent records are kept for clients that
	// reconnect with Last-Event-ID.
	sseReplaySize = 1000

	sseKeepaliveInterval = 15 * time.Second

	// sseEventName is the SSE event type of a recorded view.
	sseEventName = "view"
)

// sseEvent is one recorded view as sent to SSE clients.
type sseEvent struct {
	ID      uint64 // sequence number, starts at 1
	VideoID string
	Data    []byte // JSON-encoded history record
}

// sseHub fans out newly recorded views to connected SSE clients and keeps
// the most recent ones for replay.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  uint64

	// recent is ordered by ID and holds at most sseReplaySize events.
	recent []*sseEvent
}

type sseClient struct {
	videoIDs []string // empty follows every video
	ch       chan *sseEvent
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
	}
}

// broadcast records a view and offers it to every client following videoID.
// Slow clients miss events rather than block the subscriber.
func (h *sseHub) broadcast(videoID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	evt := &sseEvent{ID: h.nextID, VideoID: videoID, Data: payload}
	if len(h.recent) == sseReplaySize {
		h.recent = slices.Delete(h.recent, 0, 1)
	}
	h.recent = append(h.recent, evt)

	for c := range h.clients {
		if !c.follows(videoID) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func (h *sseHub) subscribe(videoIDs []string) *sseClient {
	c := &sseClient{
		videoIDs: videoIDs,
		ch:       make(chan *sseEvent, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns the kept events with ID > lastID, oldest first.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	i, _ := slices.BinarySearchFunc(h.recent, lastID+1, func(e *sseEvent, id uint64) int {
		return cmp.Compare(e.ID, id)
	})
	if i == len(h.recent) {
		return nil
	}
	return slices.Clone(h.recent[i:])
}

func (c *sseClient) follows(videoID string) bool {
	return len(c.videoIDs) == 0 || slices.Contains(c.videoIDs, videoID)
}

// parseVideoIDs splits a comma-separated videoId parameter.
func parseVideoIDs(q string) []string {
	var ids []string
	for _, id := range strings.Split(q, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// handleHistoryStream handles GET /v1/history/stream (SSE endpoint).
// ?videoId=a,b restricts the stream to the given videos.
func (s *HistoryServer) handleHistoryStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	client := s.sseHub.subscribe(parseVideoIDs(r.URL.Query().Get("videoId")))
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client.serve(r.Context(), w, flusher, s.sseHub, r.Header.Get("Last-Event-ID"))
}

// serve replays the kept events after lastEventID, if it is set, then
// streams live events until ctx ends. Events broadcast during the replay are
// also queued on c.ch and are skipped there.
func (c *sseClient) serve(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, hub *sseHub, lastEventID string) {
	var replayed uint64
	if lastID, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
		replayed = lastID
		for _, evt := range hub.eventsSince(lastID) {
			replayed = evt.ID
			if c.follows(evt.VideoID) {
				writeSSEEvent(w, evt)
			}
		}
		flusher.Flush()
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.ch:
			if evt.ID <= replayed {
				continue
			}
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, sseEventName, evt.Data)
}
