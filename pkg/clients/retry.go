package clients

import (
	"context"
	"errors"
	"math"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/logger"
	"github.com/cashflowhq/ledgersync/pkg/metrics"
	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

// Operation is one request attempt. The context carries the per-attempt
// timeout; implementations must honor it.
type Operation func(ctx context.Context) error

// RetryExecutor retries an operation with exponential backoff. Timeout and
// connection failures are retryable; HTTP 4xx responses and all other
// errors are fatal and propagate immediately. Every attempt — retryable or
// not — first passes through the shared RateLimiter and AdaptiveDelay, and
// reports its outcome back to the AdaptiveDelay so pacing tracks real
// server behavior rather than just the retry loop.
type RetryExecutor struct {
	MaxRetries    int
	BackoffFactor float64
	Timeout       time.Duration

	limiter *RateLimiter
	delay   *AdaptiveDelay
	logger  *zap.Logger

	// backoffUnit scales the backoff; overridden in tests.
	backoffUnit time.Duration
}

// NewRetryExecutor creates a retry executor wired to the shared limiter and
// adaptive delay.
func NewRetryExecutor(limiter *RateLimiter, delay *AdaptiveDelay, maxRetries int, backoffFactor float64, timeout time.Duration) *RetryExecutor {
	return &RetryExecutor{
		MaxRetries:    maxRetries,
		BackoffFactor: backoffFactor,
		Timeout:       timeout,
		limiter:       limiter,
		delay:         delay,
		logger:        logger.Get().With(zap.String("component", "retry")),
		backoffUnit:   time.Second,
	}
}

// Do runs op until it succeeds, fails fatally, or MaxRetries retryable
// attempts are exhausted; after exhaustion the last error propagates.
// Between retryable attempts it waits BackoffFactor^attempt seconds.
func (re *RetryExecutor) Do(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 0; attempt < re.MaxRetries; attempt++ {
		if err := re.limiter.Acquire(ctx); err != nil {
			return err
		}
		if err := re.delay.Wait(ctx); err != nil {
			return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "cancelled while pacing request")
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if re.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, re.Timeout)
		}
		err := op(attemptCtx)
		cancel()

		if err == nil {
			re.delay.OnSuccess()
			return nil
		}
		re.delay.OnError()

		// The parent being cancelled is not a server fault; stop at once.
		if ctx.Err() != nil {
			return syncerrors.Wrap(ctx.Err(), syncerrors.ErrorTypeInternal, "request cancelled")
		}

		err = Classify(err)
		if !syncerrors.IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == re.MaxRetries-1 {
			break
		}

		wait := re.backoff(attempt)
		re.logger.Warn("retryable request failure, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", re.MaxRetries),
			zap.Duration("backoff", wait),
			zap.Error(err))
		metrics.RetryAttempts.WithLabelValues(string(errorType(err))).Inc()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return syncerrors.Wrap(ctx.Err(), syncerrors.ErrorTypeInternal, "cancelled during retry backoff")
		}
	}

	return lastErr
}

// backoff returns BackoffFactor^attempt seconds.
func (re *RetryExecutor) backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(re.BackoffFactor, float64(attempt)) * float64(re.backoffUnit))
}

// Classify converts transport-level failures into the structured taxonomy:
// deadline and net timeouts become timeout errors, dial and connection
// resets become connection errors, and anything already structured passes
// through unchanged. Unrecognized errors classify as internal (fatal).
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var structured *syncerrors.Error
	if errors.As(err, &structured) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeTimeout, "request timed out")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeTimeout, "request timed out")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeConnection, "connection failed")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeConnection, "connection failed")
	}

	return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "request failed")
}

func errorType(err error) syncerrors.ErrorType {
	var e *syncerrors.Error
	if errors.As(err, &e) {
		return e.Type
	}
	return syncerrors.ErrorTypeInternal
}
