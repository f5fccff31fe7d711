package events

import (
	"context"
	"time"
)

// backoff doubles its delay on every wait up to max.
type backoff struct {
	min, max time.Duration
	next     time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, next: min}
}

func (b *backoff) reset() { b.next = b.min }

// wait sleeps for the current delay and reports false if ctx ended first.
func (b *backoff) wait(ctx context.Context) bool {
	t := time.NewTimer(b.next)
	defer t.Stop()
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
