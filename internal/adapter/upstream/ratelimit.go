package upstream

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a sliding-window admission gate shared by every outbound
// request. Acquire blocks until one more request fits within the window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time

	now   func() time.Time                        // for testing
	after func(time.Duration) <-chan time.Time // for testing
}

// NewRateLimiter creates a limiter admitting at most limit requests per window.
// A limit below one is raised to one.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  max(limit, 1),
		window: window,
		now:    time.Now,
		after:  time.After,
	}
}

// Acquire waits until the window has room and records the admission.
// Concurrent waiters compute their waits independently, so a burst of
// waiters released together may briefly overshoot the ceiling.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	now := r.now()
	r.prune(now)
	var wait time.Duration
	if len(r.calls) >= r.limit {
		wait = max(r.window-now.Sub(r.calls[0]), 0)
	}
	r.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.after(wait):
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, r.now())
	r.mu.Unlock()
	return nil
}

// Len reports how many admissions fall inside the current window.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
	return len(r.calls)
}

// prune drops timestamps that fell out of the window. Caller holds mu.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	n := 0
	for _, t := range r.calls {
		if t.After(cutoff) {
			r.calls[n] = t
			n++
		}
	}
	r.calls = r.calls[:n]
}
