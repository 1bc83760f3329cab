package telemetry

import (
	"sync"
	"time"
)

// RateLimiter allows at most one event per interval. It keeps error logging
// from flooding when the collector is down.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	lastTime time.Time
}

// NewRateLimiter creates a limiter with the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow reports whether an event may proceed now.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	return false
}
