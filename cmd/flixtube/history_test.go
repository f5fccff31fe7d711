package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/flixtube/internal/client"
)

func TestHistoryCmd(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"videos":[{"id":"hr-1","videoId":"abc123","watchedAt":"2026-01-15T10:00:00Z"}],"total":1}`))
	}))
	defer srv.Close()

	historyClient = client.NewHTTPClient(srv.URL)
	t.Cleanup(func() { historyClient = nil })

	var out bytes.Buffer
	historyCmd.SetOut(&out)
	historyCmd.SetContext(context.Background())
	if err := historyCmd.Flags().Set("video", "abc123"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = historyCmd.Flags().Set("video", "") })

	if err := historyCmd.RunE(historyCmd, nil); err != nil {
		t.Fatalf("history: %v", err)
	}
	if want := "limit=100&videoId=abc123"; query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if !strings.Contains(out.String(), "abc123") || !strings.Contains(out.String(), "1 views (1 total)") {
		t.Errorf("output = %q", out.String())
	}
}
