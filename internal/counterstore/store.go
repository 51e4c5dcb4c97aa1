// Package counterstore provides fixed-window counters shared by the rate
// limiter, the circuit breaker and the anomaly tracker.
package counterstore

import (
	"context"
	"time"
)

// Entry is the state of one fixed-window counter.
type Entry struct {
	Count   int64
	ResetAt time.Time
}

// Expired reports whether the window of the entry has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ResetAt)
}

// Store is a key to counter mapping where every key carries its own window.
//
// Increment is atomic per key: the window starts with the first increment and
// is never extended by later ones. Once the window elapses the next increment
// starts again at 1.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Entry, error)
	Get(ctx context.Context, key string) (Entry, bool, error)
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context) (int, error)
}
