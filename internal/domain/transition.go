package domain

import "time"

// Outcome describes what a transition changed.
type Outcome int

const (
	// OutcomeNone means the event was ignored (duplicate, stale, or the job
	// was already terminal).
	OutcomeNone Outcome = iota
	OutcomeProgress
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProgress:
		return "progress"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Terminal reports whether the outcome ends the job.
func (o Outcome) Terminal() bool {
	return o == OutcomeCompleted || o == OutcomeFailed || o == OutcomeCancelled
}

// Transition applies ev to job and returns the next state. It is pure and
// idempotent: once job is terminal every call returns job unchanged with
// OutcomeNone, so the push and poll channels may both deliver the same
// terminal status.
func Transition(job GenerationJob, ev StatusEvent) (GenerationJob, Outcome) {
	if job.Status.Terminal() {
		return job, OutcomeNone
	}
	if ev.JobID != "" && ev.JobID != job.ID {
		return job, OutcomeNone
	}

	next := job
	switch ev.Status {
	case JobStatusQueued:
		return job, OutcomeNone
	case JobStatusProcessing:
		next.Status = JobStatusProcessing
		progress := ev.Progress
		if progress <= 0 {
			progress = 50
		}
		next.Progress = max(job.Progress, min(progress, 99))
		next.EstimatedTimeRemaining = estimateRemaining(job.Format, next.Progress)
		if next == job {
			return job, OutcomeNone
		}
		return next, OutcomeProgress
	case JobStatusCompleted:
		next.Status = JobStatusCompleted
		next.Progress = 100
		next.EstimatedTimeRemaining = 0
		return next, OutcomeCompleted
	case JobStatusFailed:
		next.Status = JobStatusFailed
		next.Error = ev.ErrorMessage
		next.EstimatedTimeRemaining = 0
		return next, OutcomeFailed
	case JobStatusCancelled:
		next.Status = JobStatusCancelled
		next.EstimatedTimeRemaining = 0
		return next, OutcomeCancelled
	default:
		return job, OutcomeNone
	}
}

// NewJob builds a freshly submitted job.
func NewJob(id string, format Format) GenerationJob {
	return GenerationJob{
		ID:                     id,
		Format:                 format,
		Status:                 JobStatusQueued,
		EstimatedTimeRemaining: format.ExpectedDuration(),
	}
}

// ResumedJob rebuilds the local view of a recovered job. Progress is inferred
// from the remote status since the push history is gone.
func ResumedJob(rec PersistedJobRecord, status JobStatus) GenerationJob {
	job := rec.Job
	job.Status = JobStatusQueued
	job.Progress = 10
	if status == JobStatusProcessing {
		job.Status = JobStatusProcessing
		job.Progress = 50
	}
	job.EstimatedTimeRemaining = estimateRemaining(job.Format, job.Progress)
	return job
}

func estimateRemaining(f Format, progress int) time.Duration {
	left := 100 - progress
	if left <= 0 {
		return 0
	}
	return f.ExpectedDuration() * time.Duration(left) / 100
}
