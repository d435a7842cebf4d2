package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryOptions configures Retry.
type RetryOptions struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RetryCondition decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	RetryCondition func(error) bool
	// OnRetry is called before sleeping for the given retry attempt (0-indexed).
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a value in [0, 1). Defaults to math/rand.
	Jitter func() float64
}

// DefaultRetryOptions matches the status and signing call sites.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// Delay returns the wait before retry attempt (0-indexed):
// min(base * 2^attempt * (0.5 + jitter*0.5), max).
func (o RetryOptions) Delay(attempt int) time.Duration {
	jitter := o.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	d := float64(o.BaseDelay) * math.Pow(2, float64(attempt)) * (0.5 + jitter()*0.5)
	if o.MaxDelay > 0 && d > float64(o.MaxDelay) {
		return o.MaxDelay
	}
	return time.Duration(d)
}

// Retry runs op until it succeeds, returns a non-retryable error, or
// MaxRetries retries have been spent. Intermediate errors are never
// surfaced; the last error is returned when attempts run out.
func Retry[T any](ctx context.Context, opts RetryOptions, op func(ctx context.Context) (T, error)) (T, error) {
	cond := opts.RetryCondition
	if cond == nil {
		cond = IsRetryable
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= opts.MaxRetries || !cond(err) {
			return zero, err
		}
		delay := opts.Delay(attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, err
		}
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
