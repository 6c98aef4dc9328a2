// Package ratelimit throttles calls per key with a fixed one-minute window.
// The sync worker uses it to stay under the Google Sheets write quota.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const window = time.Minute

// Limiter allows up to a number of calls per key and minute.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*keyWindow
	now     func() time.Time

	requestsPerMinute int
}

type keyWindow struct {
	start    time.Time
	requests int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
}

// DefaultConfig matches the per-user write quota of the Sheets API.
func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60}
}

// NewLimiter creates a new rate limiter
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config = DefaultConfig()
	}
	return &Limiter{
		windows:           make(map[string]*keyWindow),
		now:               time.Now,
		requestsPerMinute: config.RequestsPerMinute,
	}
}

// Allow reports whether a call for key fits in the current window and
// counts it if so.
func (rl *Limiter) Allow(key string) bool {
	ok, _ := rl.reserve(key)
	return ok
}

// reserve counts a call for key, or returns how long until the window
// resets.
func (rl *Limiter) reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.windows[key]
	if !exists || now.Sub(w.start) >= window {
		rl.windows[key] = &keyWindow{start: now, requests: 1}
		return true, 0
	}
	if w.requests < rl.requestsPerMinute {
		w.requests++
		return true, 0
	}
	return false, w.start.Add(window).Sub(now)
}

// Wait blocks until a call for key is allowed or ctx is done.
func (rl *Limiter) Wait(ctx context.Context, key string) error {
	for {
		ok, retryAfter := rl.reserve(key)
		if ok {
			return nil
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ActiveKeys returns the number of currently tracked keys
func (rl *Limiter) ActiveKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}
