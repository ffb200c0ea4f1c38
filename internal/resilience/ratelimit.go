package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds outbound calls with a sliding time-window
// counter. Wait delays the caller until the call fits the window,
// applying backpressure instead of relying on exchange-side rejection.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	sent   []time.Time
}

// NewRateLimiter allows limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
	}
}

// Wait blocks until the next call is within budget or ctx is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		r.prune(now)

		if len(r.sent) < r.limit {
			r.sent = append(r.sent, now)
			r.mu.Unlock()
			return nil
		}

		// Oldest entry leaving the window frees one slot.
		wait := r.sent[0].Add(r.window).Sub(now)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Allow reports whether a call fits the budget right now without waiting.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.prune(now)
	if len(r.sent) < r.limit {
		r.sent = append(r.sent, now)
		return true
	}
	return false
}

func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.sent) && !r.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.sent = r.sent[i:]
	}
}
