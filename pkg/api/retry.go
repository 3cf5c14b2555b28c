package api

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds retries of transient remote failures. Only errors for
// which IsRetryable returns true are retried; everything else surfaces on
// the first attempt.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// Jitter randomizes each delay in [0, computed delay) to avoid
	// synchronized retries.
	Jitter bool
}

// DefaultRetryPolicy returns the default bounded exponential backoff:
// 3 attempts, 250ms base, doubling, capped at 5s, with full jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Delay returns the backoff delay before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 1; i < retry; i++ {
		delay *= p.Multiplier
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && delay > max {
		delay = max
	}
	if p.Jitter {
		delay = rand.Float64() * delay
	}
	return time.Duration(delay)
}

// Retry runs fn up to MaxAttempts times, sleeping per the policy between
// retryable failures. The context is honored both between attempts and by
// fn itself.
func (p RetryPolicy) Retry(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
