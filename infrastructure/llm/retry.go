package llm

import (
	"context"
	"math"
	"time"
)

// RetryPolicy defines how transient provider failures are retried.
type RetryPolicy struct {
	MaxRetries    int           // Retries after the first attempt
	InitialDelay  time.Duration // Delay before the first retry
	BackoffFactor float64       // Exponential backoff multiplier
	MaxDelay      time.Duration // Upper bound for a single delay; zero means none

	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries 429/503 three times, waiting 2s, 4s and 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  2 * time.Second,
		BackoffFactor: 2.0,
		Retryable:     IsTransient,
	}
}

// Delay returns the wait before retry number retry (zero-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(retry)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. op receives the zero-based attempt number. The last
// error is returned unchanged so callers can classify it.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if attempt >= p.MaxRetries || p.Retryable == nil || !p.Retryable(err) {
			return result, err
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return result, err
		}
	}
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
