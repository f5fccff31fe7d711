package sync

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// mockStore is a minimal in-memory history store for sync tests.
type mockStore struct {
	mu      sync.Mutex
	records []*model.HistoryRecord
	listErr error
	lists   int

	// afterPage runs after each ListRecords call with the lock released.
	afterPage func()
}

var _ store.HistoryStore = (*mockStore)(nil)

func newMockStore(records ...*model.HistoryRecord) *mockStore {
	return &mockStore{records: records}
}

func (m *mockStore) add(r *model.HistoryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *mockStore) InsertRecord(_ context.Context, _ string, r *model.HistoryRecord) error {
	m.add(r)
	return nil
}

func (m *mockStore) ListRecords(_ context.Context, f model.HistoryFilter) ([]*model.HistoryRecord, int, error) {
	m.mu.Lock()
	m.lists++
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, 0, m.listErr
	}
	f = f.Normalized()
	var matched []*model.HistoryRecord
	for _, r := range m.records {
		if f.VideoID == "" || r.VideoID == f.VideoID {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].WatchedAt.Equal(matched[j].WatchedAt) {
			return matched[i].WatchedAt.After(matched[j].WatchedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	var page []*model.HistoryRecord
	if f.Offset < total {
		end := min(f.Offset+f.Limit, total)
		page = matched[f.Offset:end]
	}
	hook := m.afterPage
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return page, total, nil
}

func (m *mockStore) Ping(context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }

var errStoreDown = errors.New("store down")
