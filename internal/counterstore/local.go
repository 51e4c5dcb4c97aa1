package counterstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// targetLoadFactor is the fill ratio the local store evicts down to when full.
const targetLoadFactor = 0.7

// Local is a bounded in-process Store. Safe for concurrent use.
type Local struct {
	mu         sync.Mutex
	entries    map[string]Entry
	maxEntries int
	now        func() time.Time
}

// NewLocal builds a Local store holding at most maxEntries keys.
func NewLocal(maxEntries int) *Local {
	return NewLocalWithClock(maxEntries, time.Now)
}

// NewLocalWithClock is NewLocal with an injected clock.
func NewLocalWithClock(maxEntries int, now func() time.Time) *Local {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Local{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		now:        now,
	}
}

func (l *Local) Increment(_ context.Context, key string, window time.Duration) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok || entry.Expired(now) {
		if !ok && len(l.entries) >= l.maxEntries {
			l.evictLocked(now)
		}
		entry = Entry{ResetAt: now.Add(window)}
	}
	entry.Count++
	l.entries[key] = entry
	return entry, nil
}

func (l *Local) Get(_ context.Context, key string) (Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(l.now()) {
		delete(l.entries, key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// Cleanup removes every expired entry and returns how many were dropped.
func (l *Local) Cleanup(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropExpiredLocked(l.now()), nil
}

// Len returns the number of tracked keys, expired ones included.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Local) dropExpiredLocked(now time.Time) int {
	removed := 0
	for key, entry := range l.entries {
		if entry.Expired(now) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// evictLocked makes room for a new key: expired entries go first, then the
// soonest-expiring ones until the map is back under the target load factor.
func (l *Local) evictLocked(now time.Time) {
	l.dropExpiredLocked(now)
	if len(l.entries) < l.maxEntries {
		return
	}

	target := int(float64(l.maxEntries) * targetLoadFactor)
	keys := make([]string, 0, len(l.entries))
	for key := range l.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return l.entries[keys[i]].ResetAt.Before(l.entries[keys[j]].ResetAt)
	})
	for _, key := range keys {
		if len(l.entries) <= target {
			break
		}
		delete(l.entries, key)
	}
}
