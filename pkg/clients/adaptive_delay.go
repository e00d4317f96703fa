package clients

import (
	"context"
	"sync"
	"time"
)

// AdaptiveDelay paces requests with a feedback-controlled inter-request
// delay: errors grow it, successes shrink it, always within
// [minDelay, maxDelay]. It is independent of the RateLimiter — the limiter
// enforces a hard ceiling while this layer reacts to observed server
// health. Safe for concurrent callers.
type AdaptiveDelay struct {
	minDelay       time.Duration
	maxDelay       time.Duration
	increaseFactor float64
	decreaseFactor float64

	mu      sync.Mutex
	current time.Duration
}

// NewAdaptiveDelay creates an adaptive delay starting at minDelay.
// increaseFactor must be >1 and decreaseFactor <1.
func NewAdaptiveDelay(minDelay, maxDelay time.Duration, increaseFactor, decreaseFactor float64) *AdaptiveDelay {
	return &AdaptiveDelay{
		minDelay:       minDelay,
		maxDelay:       maxDelay,
		increaseFactor: increaseFactor,
		decreaseFactor: decreaseFactor,
		current:        minDelay,
	}
}

// Wait sleeps for the current delay before a request.
func (ad *AdaptiveDelay) Wait(ctx context.Context) error {
	ad.mu.Lock()
	delay := ad.current
	ad.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// OnSuccess shrinks the delay after a successful request, floored at
// minDelay.
func (ad *AdaptiveDelay) OnSuccess() {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	ad.current = time.Duration(float64(ad.current) * ad.decreaseFactor)
	if ad.current < ad.minDelay {
		ad.current = ad.minDelay
	}
}

// OnError grows the delay after a failed request, capped at maxDelay.
func (ad *AdaptiveDelay) OnError() {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	ad.current = time.Duration(float64(ad.current) * ad.increaseFactor)
	if ad.current > ad.maxDelay {
		ad.current = ad.maxDelay
	}
}

// Current returns the current delay value.
func (ad *AdaptiveDelay) Current() time.Duration {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	return ad.current
}
