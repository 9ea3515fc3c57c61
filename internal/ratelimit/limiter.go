// Package ratelimit throttles slash commands per guild member.
package ratelimit

import (
	"sync"
	"time"
)

const pruneThreshold = 1024

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Limiter admits at most limit calls per key within window. A limit of zero
// or less admits everything.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clock   Clock
	windows map[string]*SlidingWindow
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		clock:   realClock{},
		windows: make(map[string]*SlidingWindow),
	}
}

func (l *Limiter) WithClock(clock Clock) {
	l.clock = clock
}

func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 || l.window <= 0 {
		return true
	}
	now := l.clock.Now()
	w := l.getWindow(key, now)
	if w.Count(now) >= l.limit {
		return false
	}
	w.Add(now)
	return true
}

func (l *Limiter) getWindow(key string, now time.Time) *SlidingWindow {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil {
		if len(l.windows) >= pruneThreshold {
			l.prune(now)
		}
		w = NewSlidingWindow(l.window)
		l.windows[key] = w
	}
	return w
}

func (l *Limiter) prune(now time.Time) {
	for key, w := range l.windows {
		if w.Count(now) == 0 {
			delete(l.windows, key)
		}
	}
}
