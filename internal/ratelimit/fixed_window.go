// Package ratelimit provides a fixed-window request limiter. The desk serves
// one business location from one machine, so window state lives in process
// memory rather than a shared store.
package ratelimit

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// FixedWindowLimiter limits requests per key in a fixed time window.
// A nil limiter allows everything, so callers may leave limiting unconfigured.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	slot   int64
	counts map[string]int
}

// NewFixedWindowLimiter creates an in-process limiter allowing limit requests
// per key per window.
func NewFixedWindowLimiter(limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		counts: make(map[string]int),
	}, nil
}

// Allow returns true when the key is within quota for the current window.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	slot := l.now().UnixMilli() / l.window.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	if slot != l.slot {
		l.slot = slot
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= l.limit
}
