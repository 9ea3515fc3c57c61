package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func TestSlidingWindow(t *testing.T) {
	window := NewSlidingWindow(5 * time.Second)
	now := time.Now()
	if count := window.Add(now); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	window.Add(now.Add(1 * time.Second))
	window.Add(now.Add(2 * time.Second))
	if count := window.Add(now.Add(3 * time.Second)); count != 4 {
		t.Fatalf("expected 4, got %d", count)
	}
	if count := window.Count(now.Add(7 * time.Second)); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}

func TestLimiterAllow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := NewLimiter(2, 10*time.Second)
	limiter.WithClock(clock)

	if !limiter.Allow("g1:u1") || !limiter.Allow("g1:u1") {
		t.Fatalf("expected first two calls to pass")
	}
	if limiter.Allow("g1:u1") {
		t.Fatalf("expected third call to be limited")
	}
	if !limiter.Allow("g1:u2") {
		t.Fatalf("expected other key to pass")
	}

	clock.now = clock.now.Add(11 * time.Second)
	if !limiter.Allow("g1:u1") {
		t.Fatalf("expected call after window to pass")
	}
}

func TestLimiterDisabled(t *testing.T) {
	limiter := NewLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("k") {
			t.Fatalf("disabled limiter rejected call %d", i)
		}
	}
}

func TestLimiterPrunesIdleKeys(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	limiter := NewLimiter(1, time.Second)
	limiter.WithClock(clock)

	for i := 0; i < pruneThreshold; i++ {
		limiter.Allow(fmt.Sprintf("k%d", i))
	}
	clock.now = clock.now.Add(2 * time.Second)
	limiter.Allow("fresh")

	if got := len(limiter.windows); got != 1 {
		t.Fatalf("expected idle windows pruned, have %d", got)
	}
}
