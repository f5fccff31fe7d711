package model

import "time"

// HistoryRecord is the durable fact that a video was watched at a point in
// time. WatchedAt is assigned by the history service when the record is
// persisted, never taken from the event.
type HistoryRecord struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	WatchedAt time.Time `json:"watchedAt"`
}

// NewHistoryRecord builds the record for one processed viewed event.
func NewHistoryRecord(id string, e ViewedEvent, watchedAt time.Time) *HistoryRecord {
	return &HistoryRecord{
		ID:        id,
		VideoID:   e.VideoID(),
		WatchedAt: watchedAt,
	}
}
