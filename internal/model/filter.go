package model

// DefaultHistoryLimit caps list queries that don't ask for a limit.
const DefaultHistoryLimit = 100

// MaxHistoryLimit is the largest page a caller may request.
const MaxHistoryLimit = 1000

// HistoryFilter holds criteria for listing history records.
type HistoryFilter struct {
	VideoID string `json:"videoId,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Normalized returns a copy of f with the limit clamped to
// (0, MaxHistoryLimit] and a non-negative offset.
func (f HistoryFilter) Normalized() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
