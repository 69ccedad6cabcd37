package ratelimit

import (
	"net/http"
	"time"
)

// Limiter decides whether the caller identified by key may proceed. When it
// may not, retryAfter is how long until the next token is due.
type Limiter interface {
	Reserve(key string) (ok bool, retryAfter time.Duration)
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

// Now returns current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// NopLimiter lets everything through.
type NopLimiter struct{}

// Reserve always succeeds.
func (NopLimiter) Reserve(string) (bool, time.Duration) { return true, 0 }
