package engine

import "time"

// Entry is the unit engines keep per key. A zero ExpiresAt never expires.
type Entry struct {
	Payload   []byte
	ExpiresAt time.Time
}

// Expired reports whether e has an expiry at or before now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Deadline converts a relative ttl into an absolute expiry. ttl <= 0 yields the
// zero time (no expiry).
func Deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
