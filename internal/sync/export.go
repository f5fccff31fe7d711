package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// header is the first JSONL line written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Collection  string    `json:"collection"`
	Timestamp   time.Time `json:"timestamp"`
	RecordCount int       `json:"record_count"`
}

// line wraps a single JSONL record with a type discriminator.
type line struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every history record in the store as JSONL to w, oldest
// first. Records inserted while the export pages through the store may or may
// not be included, but none is written twice.
func ExportJSONL(ctx context.Context, s store.HistoryStore, w io.Writer) error {
	records, err := allRecords(ctx, s)
	if err != nil {
		return err
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].WatchedAt.Equal(records[j].WatchedAt) {
			return records[i].WatchedAt.Before(records[j].WatchedAt)
		}
		return records[i].ID < records[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Collection:  store.CollectionVideos,
		Timestamp:   time.Now().UTC(),
		RecordCount: len(records),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range records {
		if err := enc.Encode(line{Type: "history", Data: r}); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}
	return nil
}

func allRecords(ctx context.Context, s store.HistoryStore) ([]*model.HistoryRecord, error) {
	seen := make(map[string]bool)
	var records []*model.HistoryRecord
	filter := model.HistoryFilter{Limit: model.MaxHistoryLimit}
	for {
		page, total, err := s.ListRecords(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list records at offset %d: %w", filter.Offset, err)
		}
		for _, r := range page {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			records = append(records, r)
		}
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			return records, nil
		}
	}
}
