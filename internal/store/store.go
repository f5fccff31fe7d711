package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/flixtube/internal/model"
)

// CollectionVideos holds one record per processed viewed event.
const CollectionVideos = "videos"

// ErrUnknownCollection is returned for a collection the store does not manage.
var ErrUnknownCollection = errors.New("store: unknown collection")

// HistoryStore defines the persistence interface for viewing history.
type HistoryStore interface {
	// InsertRecord appends rec to collection. It never updates or
	// deduplicates: a redelivered event produces a second record.
	InsertRecord(ctx context.Context, collection string, rec *model.HistoryRecord) error

	// ListRecords returns records newest first, plus the total number of
	// records matching the filter before limit and offset are applied.
	ListRecords(ctx context.Context, filter model.HistoryFilter) ([]*model.HistoryRecord, int, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
