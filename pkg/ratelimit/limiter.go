package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits or denies a request for a key (the refresh endpoint keys
// by client IP). Denial never consults or mutates token state.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// window tracks one key's count within the current fixed window
type window struct {
	start time.Time
	count int
}

// FixedWindowLimiter is an in-memory fixed-window limiter: at most limit
// requests per key per window. Suitable for a single-node deployment; a
// multi-instance service needs the Redis-backed limiter so all instances
// share one counter.
type FixedWindowLimiter struct {
	windowSize time.Duration
	limit      int
	mu         sync.Mutex
	windows    map[string]*window

	now func() time.Time
}

// NewFixedWindowLimiter creates a new in-memory fixed-window limiter
// windowSize: length of each window
// limit: maximum requests allowed per key per window
func NewFixedWindowLimiter(windowSize time.Duration, limit int) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		windowSize: windowSize,
		limit:      limit,
		windows:    make(map[string]*window),
		now:        time.Now,
	}

	go l.cleanup()

	return l
}

// SetNowFunc overrides the clock, for tests
func (l *FixedWindowLimiter) SetNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow checks whether a request for the given key should be admitted
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]
	if !exists || now.Sub(w.start) >= l.windowSize {
		l.windows[key] = &window{start: now, count: 1}
		return true, nil
	}

	if w.count >= l.limit {
		return false, nil
	}

	w.count++
	return true, nil
}

// Reset clears the window for a specific key
func (l *FixedWindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// cleanup periodically removes windows that have fully elapsed
func (l *FixedWindowLimiter) cleanup() {
	ticker := time.NewTicker(l.windowSize)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		now := l.now()
		for key, w := range l.windows {
			if now.Sub(w.start) >= l.windowSize {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}
