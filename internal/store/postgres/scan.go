package postgres

import (
	"github.com/alfredjeanlab/flixtube/internal/model"
)

// recordColumns is the column list scanned by scanRecordWithTotal, after total_count.
const recordColumns = "id, video_id, watched_at"

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRecordWithTotal scans a row that has a leading total_count column.
func scanRecordWithTotal(row scannable) (*model.HistoryRecord, int, error) {
	var (
		total int
		r     model.HistoryRecord
	)
	if err := row.Scan(&total, &r.ID, &r.VideoID, &r.WatchedAt); err != nil {
		return nil, 0, err
	}
	r.WatchedAt = r.WatchedAt.UTC()
	return &r, total, nil
}
