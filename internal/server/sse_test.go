package server

import (
	"context"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/flixtube/internal/model"
)

func TestSSEHub_BroadcastAndReceive(t *testing.T) {
	hub := newSSEHub()

	client := hub.subscribe(nil) // all videos
	defer hub.unsubscribe(client)

	hub.broadcast("abc123", []byte(`{"id":"hr-1"}`))

	select {
	case evt := <-client.ch:
		if evt.VideoID != "abc123" {
			t.Fatalf("expected video=%q, got %q", "abc123", evt.VideoID)
		}
		if string(evt.Data) != `{"id":"hr-1"}` {
			t.Fatalf("expected data=%q, got %q", `{"id":"hr-1"}`, string(evt.Data))
		}
		if evt.ID != 1 {
			t.Fatalf("expected id=1, got %d", evt.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSSEHub_VideoFiltering(t *testing.T) {
	hub := newSSEHub()

	client := hub.subscribe([]string{"abc123"})
	defer hub.unsubscribe(client)

	hub.broadcast("other", []byte(`{}`))
	hub.broadcast("abc123", []byte(`{"id":"hr-2"}`))

	select {
	case evt := <-client.ch:
		if evt.VideoID != "abc123" {
			t.Fatalf("expected video=%q, got %q", "abc123", evt.VideoID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case evt := <-client.ch:
		t.Fatalf("unexpected event for %q", evt.VideoID)
	default:
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(nil)
	hub.unsubscribe(client)

	hub.broadcast("abc123", []byte(`{}`))

	select {
	case <-client.ch:
		t.Fatal("unsubscribed client received an event")
	default:
	}
}

func TestSSEHub_EventsSince(t *testing.T) {
	hub := newSSEHub()
	if got := hub.eventsSince(0); got != nil {
		t.Fatalf("expected nil from empty hub, got %d events", len(got))
	}

	for _, id := range []string{"a", "b", "c"} {
		hub.broadcast(id, []byte(`{}`))
	}

	got := hub.eventsSince(1)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("expected IDs 2,3, got %d,%d", got[0].ID, got[1].ID)
	}
	if got[0].VideoID != "b" {
		t.Fatalf("expected video b, got %q", got[0].VideoID)
	}
}

func TestSSEHub_ReplayIsBounded(t *testing.T) {
	hub := newSSEHub()
	total := sseReplaySize + 10
	for range total {
		hub.broadcast("v", []byte(`{}`))
	}

	got := hub.eventsSince(0)
	if len(got) != sseReplaySize {
		t.Fatalf("expected %d events, got %d", sseReplaySize, len(got))
	}
	if got[0].ID != 11 {
		t.Fatalf("expected oldest ID=11, got %d", got[0].ID)
	}
	if got[len(got)-1].ID != uint64(total) {
		t.Fatalf("expected newest ID=%d, got %d", total, got[len(got)-1].ID)
	}
}

// TestHandleHistoryStream_SSE tests the full HTTP SSE endpoint.
func TestHandleHistoryStream_SSE(t *testing.T) {
	srv, _, handler := newTestServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest("GET", "/v1/history/stream?videoId=abc123", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()

	// Give the handler time to register the subscription.
	time.Sleep(50 * time.Millisecond)

	watched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv.RecordAdded(&model.HistoryRecord{ID: "hr-skip", VideoID: "other", WatchedAt: watched})
	srv.RecordAdded(&model.HistoryRecord{ID: "hr-sse1", VideoID: "abc123", WatchedAt: watched})

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected Content-Type=text/event-stream, got %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event:view") {
		t.Fatalf("expected event:view in body, got:\n%s", body)
	}
	if !strings.Contains(body, `"id":"hr-sse1"`) {
		t.Fatalf("expected record hr-sse1 in body, got:\n%s", body)
	}
	if strings.Contains(body, "hr-skip") {
		t.Fatalf("record for another video was streamed:\n%s", body)
	}
}

// TestHandleHistoryStream_LastEventID tests reconnection with Last-Event-ID.
func TestHandleHistoryStream_LastEventID(t *testing.T) {
	srv, _, handler := newTestServer()

	for _, id := range []string{"hr-1", "hr-2", "hr-3"} {
		srv.RecordAdded(&model.HistoryRecord{ID: id, VideoID: "abc123", WatchedAt: time.Now()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest("GET", "/v1/history/stream", nil)
	req.Header.Set("Last-Event-ID", "1")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(rec, req)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if strings.Contains(body, `"id":"hr-1"`) {
		t.Fatalf("event 1 replayed despite Last-Event-ID=1:\n%s", body)
	}
	if !strings.Contains(body, `"id":"hr-2"`) || !strings.Contains(body, `"id":"hr-3"`) {
		t.Fatalf("expected events 2 and 3 to be replayed, got:\n%s", body)
	}
}

// Events broadcast after a client subscribed but before its replay ran are
// both replayed and queued on the client channel; each must be sent once.
func TestSSEClient_ReplayOverlapSentOnce(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(nil)
	defer hub.unsubscribe(client)
	for _, id := range []string{"a", "b", "c"} {
		hub.broadcast(id, []byte(`{"videoId":"`+id+`"}`))
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.serve(ctx, rec, rec, hub, "1")
	}()

	time.Sleep(50 * time.Millisecond)
	hub.broadcast("d", []byte(`{"videoId":"d"}`))
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	for id, want := range map[string]int{"id:1\n": 0, "id:2\n": 1, "id:3\n": 1, "id:4\n": 1} {
		if got := strings.Count(body, id); got != want {
			t.Errorf("%q sent %d times, want %d:\n%s", strings.TrimSpace(id), got, want, body)
		}
	}
}

func TestParseVideoIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"abc123", []string{"abc123"}},
		{"a, b,,c ", []string{"a", "b", "c"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		if got := parseVideoIDs(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("parseVideoIDs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
