package resilience

import (
	"context"
	"errors"
)

// ErrNoOptions is returned by Fallback when there is nothing to try.
var ErrNoOptions = errors.New("resilience: no options to try")

// Fallback tries op against primary and then each fallback in order. A fatal
// error (see IsFatal) is returned immediately without trying further
// options; any other error moves on to the next one. onErr, when set, sees
// every failed attempt. When all options fail the last error is returned.
func Fallback[T any](ctx context.Context, primary string, fallbacks []string, op func(ctx context.Context, option string) (T, error), onErr func(option string, err error)) (T, error) {
	var zero T
	options := make([]string, 0, len(fallbacks)+1)
	if primary != "" {
		options = append(options, primary)
	}
	for _, f := range fallbacks {
		if f != "" && f != primary {
			options = append(options, f)
		}
	}
	if len(options) == 0 {
		return zero, ErrNoOptions
	}

	var lastErr error
	for _, option := range options {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx, option)
		if err == nil {
			return v, nil
		}
		if onErr != nil {
			onErr(option, err)
		}
		if IsFatal(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
