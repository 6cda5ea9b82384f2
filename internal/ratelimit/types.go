package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// windowBounds returns the window index containing now and the instant it ends.
func windowBounds(now time.Time, window time.Duration) (int64, time.Time) {
	if window < time.Second {
		window = time.Second
	}
	size := int64(window / time.Second)
	index := now.Unix() / size
	return index, time.Unix((index+1)*size, 0).UTC()
}
