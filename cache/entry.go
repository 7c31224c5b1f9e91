package cache

import "time"

// Clock provides the current time; useful for deterministic tests.
// Durations are measured with Time.Sub, so a clock backed by time.Now
// measures on the monotonic clock.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// expiry records when an entry started timing and after how many whole
// seconds it expires.
type expiry struct {
	start   time.Time
	seconds uint32
}

// expired reports whether the whole seconds elapsed since start strictly
// exceed the threshold.
func (e *expiry) expired(now time.Time) bool {
	d := now.Sub(e.start)
	if d < 0 {
		return false
	}
	return uint64(d/time.Second) > uint64(e.seconds)
}

// Entry is a stored value plus an optional expiration clock.
// The zero Entry holds an empty value that never expires.
type Entry struct {
	value []byte
	exp   *expiry // nil = never expires
}

// NewEntry wraps value without an expiration.
func NewEntry(value []byte) Entry { return Entry{value: value} }

// NewExpiringEntry wraps value with a clock started at now that expires
// after seconds whole seconds. seconds == 0 means the entry never expires.
func NewExpiringEntry(value []byte, seconds uint32, now time.Time) Entry {
	if seconds == 0 {
		return NewEntry(value)
	}
	return Entry{value: value, exp: &expiry{start: now, seconds: seconds}}
}

// Value returns the stored bytes (not a copy).
func (e Entry) Value() []byte { return e.value }

// Expired reports whether the entry is expired at now.
func (e Entry) Expired(now time.Time) bool {
	return e.exp != nil && e.exp.expired(now)
}

// Bytesize charges only the value bytes; the clock is bookkeeping.
func (e Entry) Bytesize() int { return len(e.value) }
