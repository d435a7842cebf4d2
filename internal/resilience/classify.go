// Package resilience provides generic request primitives: retry with
// exponential backoff, in-flight deduplication, timeouts, bounded-concurrency
// batches and ordered fallback. Nothing here knows about jobs or assets.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

var retryableMarkers = []string{
	"network",
	"timeout",
	"rate limit",
	"server error",
	"temporarily unavailable",
}

var fatalMarkers = []string{
	"not found",
	"unauthorized",
	"forbidden",
	"invalid",
	"malformed",
}

// IsRetryable reports whether err is transient: network failures, timeouts,
// rate limiting and server errors. Everything else fails on first occurrence.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrWorkerUnavailable) || isFatalSentinel(err) {
		return false
	}
	switch {
	case errors.Is(err, domain.ErrNetwork),
		errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrServer),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(err.Error(), retryableMarkers)
}

// IsFatal reports whether err must stop a fallback chain: the resource is
// missing, access is denied or the request itself is bad.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if isFatalSentinel(err) {
		return true
	}
	return containsAny(err.Error(), fatalMarkers)
}

func isFatalSentinel(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrValidation)
}

func containsAny(msg string, markers []string) bool {
	msg = strings.ToLower(msg)
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
