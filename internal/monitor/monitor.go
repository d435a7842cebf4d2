// Package monitor watches one job through two independent channels: push
// notifications and a polling safety net. Both feed the same apply function,
// which must be idempotent because no ordering holds between the channels.
package monitor

import (
	"context"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/resilience"
)

// DefaultPollInterval is how often the poll channel queries the status.
const DefaultPollInterval = 10 * time.Second

// ApplyFunc receives every observation. It must tolerate duplicates and
// calls arriving after the job already reached a terminal state.
type ApplyFunc func(ev domain.StatusEvent)

// Options configures a Monitor.
type Options struct {
	Source       domain.StatusSource
	Subscriber   domain.StatusSubscriber
	PollInterval time.Duration
	// StatusTimeout bounds each poll query.
	StatusTimeout time.Duration
	Retry         resilience.RetryOptions
	Logger        *infra.Logger
}

// Monitor starts watchers for jobs.
type Monitor struct {
	source        domain.StatusSource
	subscriber    domain.StatusSubscriber
	pollInterval  time.Duration
	statusTimeout time.Duration
	retry         resilience.RetryOptions
	logger        *infra.Logger
}

// New builds a Monitor. Source is required; Subscriber may be nil, in which
// case only the poll channel runs.
func New(opts Options) *Monitor {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	statusTimeout := opts.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 15 * time.Second
	}
	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = resilience.RetryOptions{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
	}
	return &Monitor{
		source:        opts.Source,
		subscriber:    opts.Subscriber,
		pollInterval:  interval,
		statusTimeout: statusTimeout,
		retry:         retry,
		logger:        infra.OrDiscard(opts.Logger),
	}
}

// Watch starts the push and poll channels for jobID and returns the function
// that cancels both. Stop does not wait: a poll already in flight may still
// deliver one late observation, which apply must ignore.
func (m *Monitor) Watch(ctx context.Context, jobID string, apply ApplyFunc) (stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if m.subscriber != nil {
		go m.push(ctx, jobID, apply)
	}
	go m.poll(ctx, jobID, apply)
	return cancel
}

func (m *Monitor) push(ctx context.Context, jobID string, apply ApplyFunc) {
	events, err := m.subscriber.Subscribe(ctx, jobID)
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("monitor: subscribe failed, relying on polling")
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.JobID != "" && ev.JobID != jobID {
				continue
			}
			ev.JobID = jobID
			switch ev.Status {
			case domain.JobStatusProcessing, domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled:
				m.logger.Debug().Str("job_id", jobID).Str("status", string(ev.Status)).Msg("monitor: push update")
				apply(ev)
			}
		}
	}
}

func (m *Monitor) poll(ctx context.Context, jobID string, apply ApplyFunc) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err := resilience.Retry(ctx, m.retry, func(ctx context.Context) (domain.StatusReport, error) {
			return resilience.WithTimeout(ctx, m.statusTimeout, func(ctx context.Context) (domain.StatusReport, error) {
				return m.source.Status(ctx, jobID)
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn().Err(err).Str("job_id", jobID).Msg("monitor: status poll failed")
			continue
		}
		if !report.Status.Terminal() {
			continue
		}
		m.logger.Debug().Str("job_id", jobID).Str("status", string(report.Status)).Msg("monitor: poll observed terminal status")
		apply(domain.StatusEvent{
			JobID:        jobID,
			Status:       report.Status,
			Progress:     report.Progress,
			ErrorMessage: report.ErrorMessage,
			ImageID:      report.ImageID,
			VideoID:      report.VideoID,
		})
	}
}
