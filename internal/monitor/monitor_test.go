package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

type stubSource struct {
	mu     sync.Mutex
	report domain.StatusReport
	err    error
	calls  atomic.Int32
}

func (s *stubSource) set(r domain.StatusReport) {
	s.mu.Lock()
	s.report = r
	s.mu.Unlock()
}

func (s *stubSource) Status(context.Context, string) (domain.StatusReport, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report, s.err
}

type stubSubscriber struct {
	ch  chan domain.StatusEvent
	err error
}

func (s *stubSubscriber) Subscribe(context.Context, string) (<-chan domain.StatusEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

type recorder struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (r *recorder) apply(ev domain.StatusEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []domain.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StatusEvent(nil), r.events...)
}

func TestPushForwardsProcessingAndTerminal(t *testing.T) {
	source := &stubSource{report: domain.StatusReport{Status: domain.JobStatusQueued}}
	sub := &stubSubscriber{ch: make(chan domain.StatusEvent, 4)}
	m := New(Options{Source: source, Subscriber: sub, PollInterval: time.Hour})

	rec := &recorder{}
	stop := m.Watch(context.Background(), "job-1", rec.apply)
	defer stop()

	sub.ch <- domain.StatusEvent{JobID: "job-1", Status: domain.JobStatusQueued}
	sub.ch <- domain.StatusEvent{JobID: "job-2", Status: domain.JobStatusCompleted}
	sub.ch <- domain.StatusEvent{JobID: "job-1", Status: domain.JobStatusProcessing, Progress: 30}
	sub.ch <- domain.StatusEvent{Status: domain.JobStatusCompleted}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	got := rec.snapshot()
	assert.Equal(t, domain.JobStatusProcessing, got[0].Status)
	assert.Equal(t, domain.JobStatusCompleted, got[1].Status)
	assert.Equal(t, "job-1", got[1].JobID)
}

func TestPollDeliversTerminalWhenPushIsSilent(t *testing.T) {
	source := &stubSource{report: domain.StatusReport{Status: domain.JobStatusProcessing}}
	sub := &stubSubscriber{ch: make(chan domain.StatusEvent)}
	m := New(Options{Source: source, Subscriber: sub, PollInterval: 10 * time.Millisecond})

	rec := &recorder{}
	stop := m.Watch(context.Background(), "job-1", rec.apply)
	defer stop()

	require.Eventually(t, func() bool { return source.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.snapshot(), "non-terminal poll results are not forwarded")

	source.set(domain.StatusReport{Status: domain.JobStatusCompleted, ImageID: "img-1"})
	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	ev := rec.snapshot()[0]
	assert.Equal(t, domain.JobStatusCompleted, ev.Status)
	assert.Equal(t, "img-1", ev.ImageID)
}

func TestSubscribeFailureFallsBackToPolling(t *testing.T) {
	source := &stubSource{report: domain.StatusReport{Status: domain.JobStatusFailed, ErrorMessage: "boom"}}
	sub := &stubSubscriber{err: errors.New("realtime down")}
	m := New(Options{Source: source, Subscriber: sub, PollInterval: 10 * time.Millisecond})

	rec := &recorder{}
	stop := m.Watch(context.Background(), "job-1", rec.apply)
	defer stop()

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "boom", rec.snapshot()[0].ErrorMessage)
}

func TestStopEndsPolling(t *testing.T) {
	source := &stubSource{report: domain.StatusReport{Status: domain.JobStatusProcessing}}
	m := New(Options{Source: source, PollInterval: 5 * time.Millisecond})

	stop := m.Watch(context.Background(), "job-1", func(domain.StatusEvent) {})
	require.Eventually(t, func() bool { return source.calls.Load() >= 1 }, time.Second, time.Millisecond)
	stop()
	time.Sleep(20 * time.Millisecond)
	before := source.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, source.calls.Load())
}
