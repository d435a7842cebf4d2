// Package apierror maps HTTP outcomes of remote APIs onto the domain error
// taxonomy so retry and fallback classification work on them.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Service string
	Code    int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return e.kind }

// FromResponse builds a StatusError for code, extracting a message from a
// JSON {"error"|"message"} body when present.
func FromResponse(service string, code int, body []byte) error {
	return &StatusError{Service: service, Code: code, Message: message(body), kind: kindFor(code)}
}

// Transport wraps a failed round trip. Caller cancellation passes through
// untouched; everything else is ErrNetwork.
func Transport(service string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", service, err)
	}
	return fmt.Errorf("%s: %w: %v", service, domain.ErrNetwork, err)
}

func kindFor(code int) error {
	switch {
	case code == http.StatusServiceUnavailable:
		return domain.ErrWorkerUnavailable
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case code >= 500:
		return domain.ErrServer
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case code == http.StatusForbidden:
		return domain.ErrForbidden
	case code == http.StatusRequestTimeout:
		return domain.ErrTimeout
	default:
		return domain.ErrValidation
	}
}

func message(body []byte) string {
	var detail struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &detail); err == nil {
		if detail.Message != "" {
			return detail.Message
		}
		if detail.Error != "" {
			return detail.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
