package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

// TimeoutError reports that an operation did not settle in time. It matches
// domain.ErrTimeout but never the operation's own errors.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == domain.ErrTimeout }

// WithTimeout races op against a timer. The op context is cancelled when the
// timer wins.
func WithTimeout[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		done <- result{v: v, err: err}
	}()

	t := time.NewTimer(d)
	defer t.Stop()

	var zero T
	select {
	case res := <-done:
		return res.v, res.err
	case <-t.C:
		return zero, &TimeoutError{After: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
