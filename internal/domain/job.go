package domain

import (
	"fmt"
	"strings"
	"time"
)

// Quality enumerates the speed/fidelity tiers offered by the worker pool.
type Quality string

const (
	QualityFast Quality = "fast"
	QualityHigh Quality = "high"
)

// Format is the content type and quality tier of a generation request.
type Format struct {
	Kind    AssetKind
	Quality Quality
}

var (
	FormatImageFast = Format{Kind: AssetKindImage, Quality: QualityFast}
	FormatImageHigh = Format{Kind: AssetKindImage, Quality: QualityHigh}
	FormatVideoFast = Format{Kind: AssetKindVideo, Quality: QualityFast}
	FormatVideoHigh = Format{Kind: AssetKindVideo, Quality: QualityHigh}
)

// String renders the wire form, e.g. "image-fast".
func (f Format) String() string {
	return string(f.Kind) + "-" + string(f.Quality)
}

// ParseFormat parses the wire form produced by Format.String.
func ParseFormat(s string) (Format, error) {
	kind, quality, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "-")
	if !ok {
		return Format{}, fmt.Errorf("%w: format %q", ErrValidation, s)
	}
	f := Format{Kind: AssetKind(kind), Quality: Quality(quality)}
	if err := f.Validate(); err != nil {
		return Format{}, err
	}
	return f, nil
}

// Validate checks that both halves of the format are known.
func (f Format) Validate() error {
	if err := f.Kind.Validate(); err != nil {
		return err
	}
	switch f.Quality {
	case QualityFast, QualityHigh:
		return nil
	default:
		return fmt.Errorf("%w: quality %q", ErrValidation, f.Quality)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ExpectedDuration is the typical wall time the worker pool needs for the format.
func (f Format) ExpectedDuration() time.Duration {
	switch f.Kind {
	case AssetKindVideo:
		return 3 * time.Minute
	case AssetKindImage:
		if f.Quality == QualityHigh {
			return 90 * time.Second
		}
		return 30 * time.Second
	default:
		return time.Minute
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition can leave the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseJobStatus normalizes remote status strings. Unknown values map to queued.
func ParseJobStatus(s string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing", "running":
		return JobStatusProcessing
	case "completed", "succeeded":
		return JobStatusCompleted
	case "failed", "error":
		return JobStatusFailed
	case "cancelled", "canceled":
		return JobStatusCancelled
	default:
		return JobStatusQueued
	}
}

// GenerationJob is the client-side view of the single in-flight job.
type GenerationJob struct {
	ID                     string        `json:"id"`
	Format                 Format        `json:"format"`
	Status                 JobStatus     `json:"status"`
	Progress               int           `json:"progress"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	Error                  string        `json:"error,omitempty"`
}

// PersistedJobRecord is the durable single-slot record of the active job.
type PersistedJobRecord struct {
	Job GenerationJob `json:"job"`
	// StartedAt is epoch milliseconds and never changes across resumes.
	StartedAt int64 `json:"started_at"`
}

// Started returns StartedAt as a time.Time.
func (r PersistedJobRecord) Started() time.Time {
	return time.UnixMilli(r.StartedAt)
}

// Age returns how long the job has been in flight at now.
func (r PersistedJobRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.Started())
}

// SubmitRequest is the payload accepted by the worker pool.
type SubmitRequest struct {
	Format          Format         `json:"format"`
	Prompt          string         `json:"prompt"`
	ReferenceImages []string       `json:"reference_images,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate checks the request before it leaves the process.
func (r SubmitRequest) Validate() error {
	if err := r.Format.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	return nil
}

// StatusReport is the authoritative remote view of a job.
type StatusReport struct {
	Status       JobStatus
	Progress     int
	ErrorMessage string
	ImageID      string
	VideoID      string
}

// StatusEvent is one observation of a job, from either the push or poll channel.
type StatusEvent struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ImageID      string    `json:"image_id,omitempty"`
	VideoID      string    `json:"video_id,omitempty"`
}
