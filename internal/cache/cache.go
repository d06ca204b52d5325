// Package cache holds short-lived counters shared by the HTTP layer.
package cache

import (
	"context"
	"sync"
	"time"
)

// AttemptCounter records one attempt for key and reports how many attempts
// key has made inside the trailing window, this one included.
type AttemptCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

type MemoryAttemptCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string][]time.Time
}

func NewMemoryAttemptCounter() *MemoryAttemptCounter {
	return &MemoryAttemptCounter{now: time.Now, entries: make(map[string][]time.Time)}
}

func (c *MemoryAttemptCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := c.now()
	cutoff := now.Add(-window)

	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	c.entries[key] = kept

	if len(c.entries) > 4096 {
		c.pruneLocked(cutoff)
	}
	return int64(len(kept)), nil
}

// pruneLocked drops keys with no attempt after cutoff.
func (c *MemoryAttemptCounter) pruneLocked(cutoff time.Time) {
	for key, history := range c.entries {
		if len(history) == 0 || !history[len(history)-1].After(cutoff) {
			delete(c.entries, key)
		}
	}
}
