package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter that gains one token
// per interval.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     int
	capacity   int
	interval   time.Duration
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket that refills one token every interval.
// An interval <= 0 yields a bucket that never limits.
func NewTokenBucket(interval time.Duration, capacity int) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		interval:   interval,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// NewPacer returns a bucket of capacity one: the first event passes at once,
// each following event waits a full interval after the previous one.
func NewPacer(interval time.Duration) *TokenBucket {
	return NewTokenBucket(interval, 1)
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	if tb.tokens >= tb.capacity {
		tb.lastRefill = now
		return
	}
	n := int(now.Sub(tb.lastRefill) / tb.interval)
	if n <= 0 {
		return
	}
	tb.tokens += n
	if tb.tokens >= tb.capacity {
		tb.tokens = tb.capacity
		tb.lastRefill = now
		return
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(n) * tb.interval)
}

// Allow checks if an event can pass and consumes a token if available.
func (tb *TokenBucket) Allow() bool {
	if tb.interval <= 0 {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Delay returns how long until the next token is available; zero when one
// is available now.
func (tb *TokenBucket) Delay() time.Duration {
	if tb.interval <= 0 {
		return 0
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens > 0 {
		return 0
	}
	d := tb.lastRefill.Add(tb.interval).Sub(tb.now())
	if d < 0 {
		return 0
	}
	return d
}

// Wait blocks until a token is available and consumes it.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		t := time.NewTimer(tb.Delay())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
