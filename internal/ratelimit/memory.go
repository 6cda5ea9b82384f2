package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryPruneThreshold bounds how many keys accumulate before stale windows are dropped.
const memoryPruneThreshold = 4096

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	index, reset := windowBounds(now, window)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.counters) >= memoryPruneThreshold {
		l.pruneLocked(index)
	}
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: index}
		l.counters[key] = entry
	}
	if entry.window != index {
		entry.window = index
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// pruneLocked drops counters from earlier windows. Caller holds l.mu.
func (l *MemoryLimiter) pruneLocked(current int64) {
	for key, entry := range l.counters {
		if entry.window != current {
			delete(l.counters, key)
		}
	}
}
