package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// recordWithTotalColumns is the column list for queryListRecords results.
var recordWithTotalColumns = []string{"total_count", "id", "video_id", "watched_at"}

func TestQueryInsertRecord(t *testing.T) {
	db, mock := newMockDB(t)
	watched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	rec := &model.HistoryRecord{ID: "hr-1", VideoID: "abc123", WatchedAt: watched}

	mock.ExpectExec("INSERT INTO videos \\(id, video_id, watched_at\\) VALUES \\(\\$1, \\$2, \\$3\\)").
		WithArgs("hr-1", "abc123", watched.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryInsertRecord(context.Background(), db, store.CollectionVideos, rec); err != nil {
		t.Fatalf("queryInsertRecord: %v", err)
	}
}

func TestQueryInsertRecord_UnknownCollection(t *testing.T) {
	db, _ := newMockDB(t)
	rec := &model.HistoryRecord{ID: "hr-1", VideoID: "abc123", WatchedAt: time.Now()}

	err := queryInsertRecord(context.Background(), db, "videos; DROP TABLE videos", rec)
	if !errors.Is(err, store.ErrUnknownCollection) {
		t.Fatalf("err = %v, want ErrUnknownCollection", err)
	}
}

func TestQueryInsertRecord_Invalid(t *testing.T) {
	db, _ := newMockDB(t)

	err := queryInsertRecord(context.Background(), db, store.CollectionVideos, &model.HistoryRecord{})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *model.ValidationError", err)
	}
}

func TestQueryInsertRecord_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	rec := &model.HistoryRecord{ID: "hr-1", VideoID: "abc123", WatchedAt: time.Now()}

	mock.ExpectExec("INSERT INTO videos").
		WillReturnError(errors.New("connection refused"))

	err := queryInsertRecord(context.Background(), db, store.CollectionVideos, rec)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestQueryListRecords(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name      string
		filter    model.HistoryFilter
		wantQuery string
		wantArgs  []driver.Value
	}{
		{
			name:      "defaults",
			filter:    model.HistoryFilter{},
			wantQuery: "SELECT COUNT\\(\\*\\) OVER\\(\\) AS total_count, id, video_id, watched_at FROM videos ORDER BY watched_at DESC, id DESC LIMIT \\$1$",
			wantArgs:  []driver.Value{model.DefaultHistoryLimit},
		},
		{
			name:      "video filter",
			filter:    model.HistoryFilter{VideoID: "abc123", Limit: 10},
			wantQuery: "FROM videos WHERE video_id = \\$1 ORDER BY watched_at DESC, id DESC LIMIT \\$2$",
			wantArgs:  []driver.Value{"abc123", 10},
		},
		{
			name:      "limit clamped with offset",
			filter:    model.HistoryFilter{Limit: 5000, Offset: 20},
			wantQuery: "LIMIT \\$1 OFFSET \\$2$",
			wantArgs:  []driver.Value{model.MaxHistoryLimit, 20},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectQuery(tc.wantQuery).
				WithArgs(tc.wantArgs...).
				WillReturnRows(sqlmock.NewRows(recordWithTotalColumns).
					AddRow(2, "hr-2", "abc123", now).
					AddRow(2, "hr-1", "abc123", now.Add(-time.Minute)))

			records, total, err := queryListRecords(context.Background(), db, store.CollectionVideos, tc.filter)
			if err != nil {
				t.Fatalf("queryListRecords: %v", err)
			}
			if total != 2 {
				t.Errorf("total = %d, want 2", total)
			}
			if len(records) != 2 || records[0].ID != "hr-2" || records[1].ID != "hr-1" {
				t.Fatalf("records = %+v, want hr-2 then hr-1", records)
			}
			if !records[0].WatchedAt.Equal(now) {
				t.Errorf("WatchedAt = %v, want %v", records[0].WatchedAt, now)
			}
		})
	}
}

func TestQueryListRecords_OffsetPastEnd(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM videos ORDER BY").
		WithArgs(model.DefaultHistoryLimit, 50).
		WillReturnRows(sqlmock.NewRows(recordWithTotalColumns))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM videos$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	records, total, err := queryListRecords(context.Background(), db, store.CollectionVideos, model.HistoryFilter{Offset: 50})
	if err != nil {
		t.Fatalf("queryListRecords: %v", err)
	}
	if len(records) != 0 || total != 7 {
		t.Errorf("got %d records total=%d, want 0 records total=7", len(records), total)
	}
}

func TestQueryListRecords_Empty(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM videos").
		WillReturnRows(sqlmock.NewRows(recordWithTotalColumns))

	records, total, err := queryListRecords(context.Background(), db, store.CollectionVideos, model.HistoryFilter{})
	if err != nil {
		t.Fatalf("queryListRecords: %v", err)
	}
	if records != nil || total != 0 {
		t.Errorf("got %v total=%d, want nil and 0", records, total)
	}
}

func TestQueryListRecords_QueryError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM videos").WillReturnError(errors.New("boom"))

	if _, _, err := queryListRecords(context.Background(), db, store.CollectionVideos, model.HistoryFilter{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresStore_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	s := NewWithDB(db)
	mock.ExpectPing()
	mock.ExpectClose()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{
		"migrations/000001_create_videos.up.sql",
		"migrations/000001_create_videos.down.sql",
	} {
		if _, err := migrationsFS.ReadFile(name); err != nil {
			t.Errorf("migration %s not embedded: %v", name, err)
		}
	}
}
