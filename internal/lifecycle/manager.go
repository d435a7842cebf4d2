// Package lifecycle owns the single in-flight generation job: submission,
// durable tracking, recovery after restart, cancellation and the one-shot
// completion or failure that ends it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/messages"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/monitor"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/resilience"
)

// DefaultTimeout is the local ceiling for one job, measured from submission.
const DefaultTimeout = 5 * time.Minute

const statusQueryTimeout = 15 * time.Second

// Watcher starts the status channels for a job. *monitor.Monitor satisfies it.
type Watcher interface {
	Watch(ctx context.Context, jobID string, apply monitor.ApplyFunc) context.CancelFunc
}

// Resolver is the part of the asset resolver used on completion.
// *assets.Resolver satisfies it.
type Resolver interface {
	Initialize(sessionID string)
	Clear()
	Resolve(ctx context.Context, ref domain.ArtifactRef) (domain.Artifact, error)
	Prime(art domain.Artifact)
	InvalidateListings()
}

// Timer is the handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

// Options wires a Manager. Everything except Now, AfterFunc, Timeout, Locale
// and Logger is required.
type Options struct {
	Pool     domain.WorkerPool
	Status   domain.StatusSource
	Store    domain.JobStore
	Monitor  Watcher
	Assets   Resolver
	Notifier domain.Notifier

	Timeout time.Duration
	// Locale selects the language of failure messages.
	Locale    string
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer
	Logger    *infra.Logger
}

type activeJob struct {
	job       domain.GenerationJob
	startedAt time.Time
	gen       uint64
	// finishing is set by whichever path claims the terminal transition.
	finishing bool
	stop      context.CancelFunc
	timer     Timer
}

// Manager tracks at most one job. State is guarded by mu; no I/O runs while
// it is held. Every asynchronous callback carries the generation it was
// started for and is dropped when that generation is no longer current.
type Manager struct {
	pool     domain.WorkerPool
	status   domain.StatusSource
	store    domain.JobStore
	monitor  Watcher
	assets   Resolver
	notifier domain.Notifier

	timeout   time.Duration
	locale    string
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) Timer
	logger    *infra.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// emitMu orders notifications; it is taken before mu, never after.
	emitMu sync.Mutex

	mu         sync.Mutex
	active     *activeJob
	submitting bool
	gen        uint64
	session    string
}

func NewManager(opts Options) (*Manager, error) {
	switch {
	case opts.Pool == nil:
		return nil, errors.New("lifecycle: worker pool is required")
	case opts.Status == nil:
		return nil, errors.New("lifecycle: status source is required")
	case opts.Store == nil:
		return nil, errors.New("lifecycle: job store is required")
	case opts.Monitor == nil:
		return nil, errors.New("lifecycle: monitor is required")
	case opts.Assets == nil:
		return nil, errors.New("lifecycle: asset resolver is required")
	case opts.Notifier == nil:
		return nil, errors.New("lifecycle: notifier is required")
	}
	m := &Manager{
		pool:      opts.Pool,
		status:    opts.Status,
		store:     opts.Store,
		monitor:   opts.Monitor,
		assets:    opts.Assets,
		notifier:  opts.Notifier,
		timeout:   opts.Timeout,
		locale:    opts.Locale,
		now:       opts.Now,
		afterFunc: opts.AfterFunc,
		logger:    infra.OrDiscard(opts.Logger),
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.locale == "" {
		m.locale = "en"
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Initialize binds the persisted slot and the caches to sessionID. A job
// tracked for a previous session is dropped locally; its record stays in
// that session's slot.
func (m *Manager) Initialize(ctx context.Context, sessionID string) error {
	if err := m.store.Initialize(ctx, sessionID); err != nil {
		return fmt.Errorf("lifecycle: initialize store: %w", err)
	}
	m.assets.Initialize(sessionID)

	m.mu.Lock()
	var dropped *activeJob
	if m.session != sessionID {
		dropped = m.detachLocked()
	}
	m.session = sessionID
	m.mu.Unlock()

	stopWatchers(dropped)
	return nil
}

// Clear drops local state, the persisted record and every cache.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	dropped := m.detachLocked()
	m.mu.Unlock()

	stopWatchers(dropped)
	m.assets.Clear()
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("lifecycle: clear store: %w", err)
	}
	return nil
}

// Close stops tracking without touching the persisted record, so a later
// process can recover the job.
func (m *Manager) Close() {
	m.mu.Lock()
	dropped := m.detachLocked()
	m.mu.Unlock()
	stopWatchers(dropped)
	m.cancel()
}

// Active returns a snapshot of the tracked job.
func (m *Manager) Active() (domain.GenerationJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return domain.GenerationJob{}, false
	}
	return m.active.job, true
}

// Submit enqueues req and starts tracking the new job. A submission error
// leaves no trace: nothing is persisted and nothing is tracked.
func (m *Manager) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.active != nil || m.submitting {
		m.mu.Unlock()
		return "", domain.ErrJobActive
	}
	m.submitting = true
	m.mu.Unlock()

	jobID, err := m.pool.Enqueue(ctx, req)
	if err != nil {
		m.mu.Lock()
		m.submitting = false
		m.mu.Unlock()

		subErr := &domain.SubmissionError{Err: err}
		m.logger.Error().Err(err).Str("format", req.Format.String()).Msg("job submission failed")
		m.notifyFailure("", subErr)
		return "", subErr
	}

	job := domain.NewJob(jobID, req.Format)
	startedAt := m.now()
	if err := m.store.Save(ctx, domain.PersistedJobRecord{Job: job, StartedAt: startedAt.UnixMilli()}); err != nil {
		// The job runs regardless; it just cannot be recovered after a restart.
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("persist active job failed")
	}

	m.mu.Lock()
	m.submitting = false
	m.gen++
	gen := m.gen
	m.active = &activeJob{job: job, startedAt: startedAt, gen: gen}
	m.mu.Unlock()

	m.logger.Info().Str("job_id", jobID).Str("format", req.Format.String()).Msg("job submitted")
	m.emitMu.Lock()
	m.notifier.JobStarted(job)
	m.emitMu.Unlock()
	m.track(jobID, gen, m.timeout)
	return jobID, nil
}

// Recover resumes the persisted job, if any. Records older than the timeout
// are dropped without asking the remote side.
func (m *Manager) Recover(ctx context.Context) error {
	m.mu.Lock()
	busy := m.active != nil || m.submitting
	m.mu.Unlock()
	if busy {
		return nil
	}

	rec, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: load active job: %w", err)
	}
	if rec == nil {
		return nil
	}
	jobID := rec.Job.ID
	age := rec.Age(m.now())
	if age >= m.timeout {
		m.logger.Info().Str("job_id", jobID).Dur("age", age).Msg("discarding stale persisted job")
		if err := m.store.Clear(ctx); err != nil {
			return fmt.Errorf("lifecycle: clear stale job: %w", err)
		}
		return nil
	}

	report, err := resilience.WithTimeout(ctx, statusQueryTimeout, func(ctx context.Context) (domain.StatusReport, error) {
		return m.status.Status(ctx, jobID)
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("status query on recovery failed; resuming as queued")
		report = domain.StatusReport{Status: domain.JobStatusQueued}
	}

	m.mu.Lock()
	if m.active != nil || m.submitting {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	a := &activeJob{job: domain.ResumedJob(*rec, report.Status), startedAt: rec.Started(), gen: gen}
	m.active = a
	ev := domain.StatusEvent{
		JobID:        jobID,
		Status:       report.Status,
		Progress:     report.Progress,
		ErrorMessage: report.ErrorMessage,
		ImageID:      report.ImageID,
		VideoID:      report.VideoID,
	}
	var outcome domain.Outcome
	if report.Status.Terminal() {
		if next, out := domain.Transition(rec.Job, ev); out.Terminal() {
			a.job, outcome, a.finishing = next, out, true
		}
	}
	job := a.job
	m.mu.Unlock()

	switch outcome {
	case domain.OutcomeCompleted:
		m.logger.Info().Str("job_id", jobID).Msg("recovered job already completed")
		m.complete(ctx, gen, job, ev)
		return nil
	case domain.OutcomeFailed:
		m.finishFailure(ctx, gen, jobID, &domain.RemoteJobError{JobID: jobID, Message: report.ErrorMessage})
		return nil
	case domain.OutcomeCancelled:
		m.finishFailure(ctx, gen, jobID, fmt.Errorf("job %s: %w", jobID, domain.ErrCancelled))
		return nil
	}

	if err := m.store.Save(ctx, domain.PersistedJobRecord{Job: job, StartedAt: rec.StartedAt}); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("persist resumed job failed")
	}
	m.logger.Info().Str("job_id", jobID).Str("status", string(job.Status)).Dur("age", age).Msg("resuming job")
	m.emitProgress(gen)
	m.track(jobID, gen, m.timeout-age)
	return nil
}

// Cancel stops tracking jobID locally, then asks the worker pool to cancel
// it. Local state is gone even when the remote call fails; that error is
// returned for the caller to surface.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	a := m.active
	if a == nil || a.job.ID != jobID || a.finishing {
		m.mu.Unlock()
		return fmt.Errorf("lifecycle: job %s: %w", jobID, domain.ErrNotFound)
	}
	dropped := m.detachLocked()
	m.mu.Unlock()

	stopWatchers(dropped)
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("clear persisted job failed")
	}
	m.logger.Info().Str("job_id", jobID).Msg("job cancelled")
	m.emitMu.Lock()
	m.notifier.JobCancelled(jobID)
	m.emitMu.Unlock()

	if err := m.pool.Cancel(ctx, jobID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("remote cancel failed")
		return &RemoteCancelError{JobID: jobID, Err: err}
	}
	return nil
}

// RemoteCancelError means the job was dropped locally but the worker pool did
// not acknowledge the cancellation.
type RemoteCancelError struct {
	JobID string
	Err   error
}

func (e *RemoteCancelError) Error() string {
	return fmt.Sprintf("lifecycle: cancel job %s remotely: %v", e.JobID, e.Err)
}

func (e *RemoteCancelError) Unwrap() error { return e.Err }

// track starts the monitor and the timeout timer for generation gen.
func (m *Manager) track(jobID string, gen uint64, remaining time.Duration) {
	stop := m.monitor.Watch(m.ctx, jobID, func(ev domain.StatusEvent) { m.apply(gen, ev) })
	timer := m.afterFunc(max(remaining, 0), func() { m.expire(gen) })

	m.mu.Lock()
	a := m.active
	if a == nil || a.gen != gen || a.finishing {
		m.mu.Unlock()
		stop()
		timer.Stop()
		return
	}
	a.stop, a.timer = stop, timer
	m.mu.Unlock()
}

// apply is the single entry point for push and poll observations.
func (m *Manager) apply(gen uint64, ev domain.StatusEvent) {
	m.mu.Lock()
	a := m.active
	if a == nil || a.gen != gen || a.finishing {
		m.mu.Unlock()
		return
	}
	next, outcome := domain.Transition(a.job, ev)
	if outcome == domain.OutcomeNone {
		m.mu.Unlock()
		return
	}
	a.job = next
	if !outcome.Terminal() {
		m.mu.Unlock()
		m.emitProgress(gen)
		return
	}
	a.finishing = true
	stop, timer := a.stop, a.timer
	m.mu.Unlock()

	stopAll(stop, timer)
	switch outcome {
	case domain.OutcomeCompleted:
		m.complete(m.ctx, gen, next, ev)
	case domain.OutcomeFailed:
		m.finishFailure(m.ctx, gen, next.ID, &domain.RemoteJobError{JobID: next.ID, Message: ev.ErrorMessage})
	case domain.OutcomeCancelled:
		m.finishFailure(m.ctx, gen, next.ID, fmt.Errorf("job %s: %w", next.ID, domain.ErrCancelled))
	}
}

// expire fires when the ceiling elapses before a terminal transition.
func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	a := m.active
	if a == nil || a.gen != gen || a.finishing {
		m.mu.Unlock()
		return
	}
	a.finishing = true
	a.job.Status = domain.JobStatusFailed
	a.job.EstimatedTimeRemaining = 0
	jobID, stop := a.job.ID, a.stop
	m.mu.Unlock()

	stopAll(stop, nil)
	m.logger.Warn().Str("job_id", jobID).Dur("timeout", m.timeout).Msg("job exceeded generation timeout")
	m.finishFailure(m.ctx, gen, jobID, fmt.Errorf("job %s: %w", jobID, domain.ErrGenerationTimeout))
}

// complete resolves the output and emits the single completion event.
func (m *Manager) complete(ctx context.Context, gen uint64, job domain.GenerationJob, ev domain.StatusEvent) {
	ref, ok := outputRef(job.Format.Kind, ev)
	if !ok {
		// Push payloads may omit output ids; the status source has them.
		report, err := resilience.WithTimeout(ctx, statusQueryTimeout, func(ctx context.Context) (domain.StatusReport, error) {
			return m.status.Status(ctx, job.ID)
		})
		if err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("status query for completed output failed")
		} else {
			ev.ImageID, ev.VideoID = report.ImageID, report.VideoID
			ref, ok = outputRef(job.Format.Kind, ev)
		}
	}
	if !ok {
		m.finishFailure(ctx, gen, job.ID, fmt.Errorf("job %s completed without output: %w", job.ID, domain.ErrNotFound))
		return
	}

	art, err := m.assets.Resolve(ctx, ref)
	switch {
	case err != nil:
		m.logger.Error().Err(err).Str("job_id", job.ID).Str("asset_id", ref.AssetID).Msg("resolve completed output failed")
	case art.IntegrityErr != nil:
		m.logger.Error().Err(art.IntegrityErr).Str("job_id", job.ID).Str("asset_id", ref.AssetID).Msg("completed output has no usable storage location")
	}

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("clear persisted job failed")
	}
	m.emitMu.Lock()
	m.notifier.JobCompleted(domain.CompletionEvent{
		AssetID: ref.AssetID,
		URL:     art.SignedURL,
		Bucket:  art.Bucket,
		Kind:    ref.Kind,
		JobID:   job.ID,
	})
	m.emitMu.Unlock()
	if art.SignedURL != "" {
		m.assets.Prime(art)
	}
	m.assets.InvalidateListings()
	m.release(gen)
	m.logger.Info().Str("job_id", job.ID).Str("asset_id", ref.AssetID).Msg("job completed")
}

// finishFailure clears the record and emits the single failure event.
func (m *Manager) finishFailure(ctx context.Context, gen uint64, jobID string, cause error) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("clear persisted job failed")
	}
	m.notifyFailure(jobID, cause)
	m.release(gen)
	m.logger.Info().Err(cause).Str("job_id", jobID).Msg("job failed")
}

func (m *Manager) notifyFailure(jobID string, cause error) {
	reason := messages.Reason(cause)
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.notifier.JobFailed(domain.FailureEvent{
		JobID:   jobID,
		Reason:  reason,
		Message: messages.Text(reason, m.locale),
		Err:     cause,
	})
}

// emitProgress publishes the latest snapshot of generation gen. The
// generation is re-checked under emitMu, so a progress event is dropped
// once the job is finishing or gone and never trails its terminal event.
func (m *Manager) emitProgress(gen uint64) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.mu.Lock()
	a := m.active
	if a == nil || a.gen != gen || a.finishing {
		m.mu.Unlock()
		return
	}
	job := a.job
	m.mu.Unlock()
	m.notifier.JobProgress(job)
}

// release forgets generation gen if it is still the active one.
func (m *Manager) release(gen uint64) {
	m.mu.Lock()
	if m.active != nil && m.active.gen == gen {
		m.active = nil
	}
	m.mu.Unlock()
}

// detachLocked removes the active job and returns it so the caller can stop
// its watchers after unlocking.
func (m *Manager) detachLocked() *activeJob {
	a := m.active
	if a != nil {
		a.finishing = true
	}
	m.active = nil
	return a
}

func stopWatchers(a *activeJob) {
	if a == nil {
		return
	}
	stopAll(a.stop, a.timer)
}

func stopAll(stop context.CancelFunc, timer Timer) {
	if stop != nil {
		stop()
	}
	if timer != nil {
		timer.Stop()
	}
}

// outputRef picks the output slot of a completed job. The slot matching the
// requested kind wins; otherwise whichever id is present, image first.
func outputRef(kind domain.AssetKind, ev domain.StatusEvent) (domain.ArtifactRef, bool) {
	switch {
	case kind == domain.AssetKindVideo && ev.VideoID != "":
		return domain.PrimaryArtifact(ev.VideoID, domain.AssetKindVideo), true
	case ev.ImageID != "":
		return domain.PrimaryArtifact(ev.ImageID, domain.AssetKindImage), true
	case ev.VideoID != "":
		return domain.PrimaryArtifact(ev.VideoID, domain.AssetKindVideo), true
	default:
		return domain.ArtifactRef{}, false
	}
}
