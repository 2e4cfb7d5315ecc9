package relay

import (
	"sync"
	"time"
)

// RateLimiter caps how many envelopes one connection may submit inside a
// sliding window. Each connection carries its own limiter, so a chatty peer
// only throttles itself, never the room.
type RateLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter builds a limiter for limit events per window. Non-positive
// inputs fall back to the relay defaults instead of disabling the limiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		stamps: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event observed at now fits the budget, recording
// it when it does. Callers pass their own clock reading so the read loop and
// tests share one notion of time.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Age out stamps that fell behind the window before counting.
	horizon := now.Add(-r.window)
	kept := r.stamps[:0]
	for _, ts := range r.stamps {
		if ts.After(horizon) {
			kept = append(kept, ts)
		}
	}
	r.stamps = kept

	if len(r.stamps) >= r.limit {
		return false
	}
	r.stamps = append(r.stamps, now)
	return true
}
