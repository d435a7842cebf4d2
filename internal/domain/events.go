package domain

// CompletionEvent is broadcast once per completed job.
type CompletionEvent struct {
	AssetID string    `json:"asset_id"`
	URL     string    `json:"image_url,omitempty"`
	Bucket  string    `json:"bucket"`
	Kind    AssetKind `json:"type"`
	JobID   string    `json:"job_id"`
}

// FailureReason classifies why a job ended without output.
type FailureReason string

const (
	ReasonNetwork           FailureReason = "network"
	ReasonServer            FailureReason = "server"
	ReasonValidation        FailureReason = "validation"
	ReasonUnauthorized      FailureReason = "unauthorized"
	ReasonWorkerUnavailable FailureReason = "worker_unavailable"
	ReasonTimeout           FailureReason = "timeout"
	ReasonCancelled         FailureReason = "cancelled"
	ReasonGeneric           FailureReason = "generic"
)

// FailureEvent is broadcast once per failed, cancelled-remotely or timed out job.
type FailureEvent struct {
	JobID   string        `json:"job_id"`
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message"`
	Err     error         `json:"-"`
}

// Notifier receives lifecycle signals for UI collaborators.
type Notifier interface {
	JobStarted(job GenerationJob)
	JobProgress(job GenerationJob)
	JobCompleted(ev CompletionEvent)
	JobFailed(ev FailureEvent)
	JobCancelled(jobID string)
}
