package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// collectionTables maps collections to table names. Table names cannot be
// bound as query parameters, so only names listed here reach the SQL text.
var collectionTables = map[string]string{
	store.CollectionVideos: "videos",
}

func tableFor(collection string) (string, error) {
	table, ok := collectionTables[collection]
	if !ok {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownCollection, collection)
	}
	return table, nil
}

func queryInsertRecord(ctx context.Context, db executor, collection string, rec *model.HistoryRecord) error {
	if err := model.ValidateHistoryRecord(rec); err != nil {
		return err
	}
	table, err := tableFor(collection)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, video_id, watched_at) VALUES ($1, $2, $3)`,
		rec.ID, rec.VideoID, rec.WatchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", collection, err)
	}
	return nil
}

func queryListRecords(ctx context.Context, db executor, collection string, filter model.HistoryFilter) ([]*model.HistoryRecord, int, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, 0, err
	}
	filter = filter.Normalized()

	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.VideoID != "" {
		whereClauses = append(whereClauses, "video_id = "+nextArg())
		args = append(args, filter.VideoID)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + recordColumns + " FROM " + table + whereSQL +
		" ORDER BY watched_at DESC, id DESC LIMIT " + nextArg()
	args = append(args, filter.Limit)
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s records: %w", collection, err)
	}
	defer rows.Close()

	var records []*model.HistoryRecord
	var total int
	for rows.Next() {
		rec, t, err := scanRecordWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan %s records: %w", collection, err)
		}
		total = t
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate %s records: %w", collection, err)
	}

	// With an offset past the end there are no rows to carry the total.
	if len(records) == 0 && filter.Offset > 0 {
		countQuery := "SELECT COUNT(*) FROM " + table + whereSQL
		countArgs := args[:len(args)-2]
		if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count %s records: %w", collection, err)
		}
	}

	return records, total, nil
}
