// Package events fans lifecycle notifications out to interested listeners
// such as the SSE endpoint and the CLI.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
)

// Type names a lifecycle notification.
type Type string

const (
	TypeStarted   Type = "job.started"
	TypeProgress  Type = "job.progress"
	TypeCompleted Type = "job.completed"
	TypeFailed    Type = "job.failed"
	TypeCancelled Type = "job.cancelled"
)

// Event is one notification. Exactly one payload field is set, matching Type
// (cancelled carries only JobID).
type Event struct {
	Type       Type                    `json:"type"`
	JobID      string                  `json:"job_id"`
	At         time.Time               `json:"at"`
	Job        *domain.GenerationJob   `json:"job,omitempty"`
	Completion *domain.CompletionEvent `json:"completion,omitempty"`
	Failure    *domain.FailureEvent    `json:"failure,omitempty"`
}

const defaultBuffer = 32

// Bus implements domain.Notifier. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	now    func() time.Time
	logger *infra.Logger
}

func NewBus(logger *infra.Logger) *Bus {
	return &Bus{
		subs:   make(map[chan Event]struct{}),
		now:    time.Now,
		logger: infra.OrDiscard(logger),
	}
}

// Subscribe returns a channel of events that closes when ctx is done.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, defaultBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

func (b *Bus) publish(ev Event) {
	ev.At = b.now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().Str("type", string(ev.Type)).Str("job_id", ev.JobID).Msg("event subscriber lagging; dropped event")
		}
	}
}

func (b *Bus) JobStarted(job domain.GenerationJob) {
	b.publish(Event{Type: TypeStarted, JobID: job.ID, Job: &job})
}

func (b *Bus) JobProgress(job domain.GenerationJob) {
	b.publish(Event{Type: TypeProgress, JobID: job.ID, Job: &job})
}

func (b *Bus) JobCompleted(ev domain.CompletionEvent) {
	b.publish(Event{Type: TypeCompleted, JobID: ev.JobID, Completion: &ev})
}

func (b *Bus) JobFailed(ev domain.FailureEvent) {
	b.publish(Event{Type: TypeFailed, JobID: ev.JobID, Failure: &ev})
}

func (b *Bus) JobCancelled(jobID string) {
	b.publish(Event{Type: TypeCancelled, JobID: jobID})
}

var _ domain.Notifier = (*Bus)(nil)
