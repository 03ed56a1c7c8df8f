package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// transientError marks failures worth retrying: rate limits, server-side
// errors, network timeouts. Anything else (auth, malformed request)
// short-circuits immediately.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// markTransient wraps an error as retryable.
func markTransient(err error) error {
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// retryPolicy bounds retries of transient provider failures with exponential
// backoff and jitter. The jitter spreads concurrent retries so a shared rate
// limit is not hammered in lockstep.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(maxAttempts int, baseDelay time.Duration, logger *zap.Logger) retryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = 4 * time.Second
	}
	return retryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// delayBefore computes the wait before retry n (n >= 1 counts failures so
// far): baseDelay * 2^(n-1) plus up to one second of uniform jitter.
func (p retryPolicy) delayBefore(n int) time.Duration {
	backoff := float64(p.baseDelay) * math.Pow(2, float64(n-1))
	jitter := rand.Float64() * float64(time.Second)
	return time.Duration(backoff + jitter)
}

// run invokes call until it succeeds, fails non-transiently, exhausts the
// attempt budget, or the context ends. The last error is returned to the
// caller, which degrades it to the sentinel.
func (p retryPolicy) run(ctx context.Context, call func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result, err := call()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) {
			p.logger.Error("non-retriable provider error", zap.Error(err))
			return "", err
		}
		if attempt == p.maxAttempts {
			break
		}

		delay := p.delayBefore(attempt)
		p.logger.Warn("transient provider error, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("retries exhausted after %d attempts: %w", p.maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
