package domain

import (
	"errors"
	"fmt"
)

var (
	// Transient failures. Retried with backoff.
	ErrNetwork     = errors.New("network error")
	ErrTimeout     = errors.New("timeout")
	ErrServer      = errors.New("server error")
	ErrRateLimited = errors.New("rate limit exceeded")

	// Fatal failures. Never retried and never fallback-chained.
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("invalid request")

	// ErrWorkerUnavailable is fatal for the request but maps to its own
	// user-facing guidance.
	ErrWorkerUnavailable = errors.New("worker pool unavailable")

	// ErrGenerationTimeout marks a job that exceeded the local ceiling.
	ErrGenerationTimeout = errors.New("generation timed out")

	ErrJobActive     = errors.New("a generation job is already in progress")
	ErrMissingBucket = errors.New("asset record has no storage bucket")
	ErrCancelled     = errors.New("generation cancelled")
)

// SubmissionError reports a failed enqueue call. No job record exists when it
// is returned.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit generation job: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// WorkerUnavailable reports whether the submission failed because the worker
// pool is not accepting work.
func (e *SubmissionError) WorkerUnavailable() bool {
	return errors.Is(e.Err, ErrWorkerUnavailable)
}

// RemoteJobError carries the error message reported by the worker pool for a
// failed job.
type RemoteJobError struct {
	JobID   string
	Message string
}

func (e *RemoteJobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobID)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}
