// Package clients provides the traffic-shaping and resilience layer every
// outbound FlexiBee request passes through: a sliding-window rate limiter
// enforcing the server's hard request budget, an adaptive delay smoothing
// burstiness in response to observed server health, and a retry executor
// with exponential backoff for transient failures.
package clients

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/logger"
	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

// RateLimiter is a sliding-window token bucket: at most maxRequests may be
// admitted in any trailing window. It is the hard ceiling; AdaptiveDelay is
// the soft pacing layered on top. Safe for concurrent callers.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests []time.Time // admission timestamps, oldest first
	logger   *zap.Logger
}

// RateLimiterStats is a non-blocking snapshot of the limiter state.
type RateLimiterStats struct {
	RequestsInWindow int           `json:"requests_in_window"`
	MaxRequests      int           `json:"max_requests"`
	Window           time.Duration `json:"window"`
	AvailableSlots   int           `json:"available_slots"`
}

// NewRateLimiter creates a rate limiter admitting maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make([]time.Time, 0, maxRequests),
		logger:      logger.Get().With(zap.String("component", "rate_limiter")),
	}
}

// Acquire blocks until a request slot is available, then records the
// admission. When the window is full it sleeps until the oldest admission
// ages out and re-evaluates in a loop, so concurrent acquirers that steal
// the freed slot are tolerated rather than over-admitted.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.evict(now)

		if len(rl.requests) < rl.maxRequests {
			rl.requests = append(rl.requests, now)
			rl.mu.Unlock()
			return nil
		}

		waitUntil := rl.requests[0].Add(rl.window)
		rl.mu.Unlock()

		wait := time.Until(waitUntil)
		if wait <= 0 {
			continue
		}

		rl.logger.Debug("rate limit reached, waiting",
			zap.Duration("wait", wait),
			zap.Int("max_requests", rl.maxRequests))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return syncerrors.Wrap(ctx.Err(), syncerrors.ErrorTypeRateLimit, "cancelled while waiting for rate limit")
		}
	}
}

// Stats returns a snapshot of the current window without blocking on a
// free slot.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.evict(time.Now())
	return RateLimiterStats{
		RequestsInWindow: len(rl.requests),
		MaxRequests:      rl.maxRequests,
		Window:           rl.window,
		AvailableSlots:   rl.maxRequests - len(rl.requests),
	}
}

// evict drops admissions older than now-window. Caller holds the lock.
func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.requests) && rl.requests[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		rl.requests = append(rl.requests[:0], rl.requests[i:]...)
	}
}
