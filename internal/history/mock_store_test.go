package history

import (
	"context"
	"sync"

	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// mockStore is an in-memory HistoryStore for tests.
type mockStore struct {
	mu      sync.Mutex
	records map[string][]*model.HistoryRecord
	inserts int

	// failures makes the next N inserts fail with failErr.
	failures int
	failErr  error

	// block makes InsertRecord wait for ctx to end.
	block bool

	// gate, when set, holds every insert until it is closed.
	gate chan struct{}

	// onInsert is called after a successful insert.
	onInsert func(rec *model.HistoryRecord)
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string][]*model.HistoryRecord)}
}

var _ store.HistoryStore = (*mockStore)(nil)

func (m *mockStore) InsertRecord(ctx context.Context, collection string, rec *model.HistoryRecord) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.inserts++
	if m.failures > 0 {
		m.failures--
		m.mu.Unlock()
		return m.failErr
	}
	cp := *rec
	m.records[collection] = append(m.records[collection], &cp)
	hook := m.onInsert
	m.mu.Unlock()
	if hook != nil {
		hook(&cp)
	}
	return nil
}

func (m *mockStore) ListRecords(_ context.Context, filter model.HistoryFilter) ([]*model.HistoryRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.HistoryRecord
	for _, r := range m.records[store.CollectionVideos] {
		if filter.VideoID == "" || r.VideoID == filter.VideoID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockStore) Ping(context.Context) error { return nil }
func (m *mockStore) Close() error               { return nil }

func (m *mockStore) videos() []*model.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.HistoryRecord(nil), m.records[store.CollectionVideos]...)
}

func (m *mockStore) insertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}
