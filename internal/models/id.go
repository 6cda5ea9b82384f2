package models

import (
	"time"

	"github.com/google/uuid"
)

// assignID fills an empty identifier with a random UUID.
func assignID(id *string) {
	if id == nil || *id != "" {
		return
	}
	*id = uuid.NewString()
}

// NextInstant returns now truncated to microseconds, forced strictly after prev.
// Postgres keeps microsecond precision, so ordering must hold at that resolution.
func NextInstant(now, prev time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if prev.IsZero() {
		return now
	}
	floor := prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}
