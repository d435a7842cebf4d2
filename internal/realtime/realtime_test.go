package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
)

func TestHubDeliversPerJob(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := hub.Subscribe(ctx, "job-a")
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "job-b")
	require.NoError(t, err)

	hub.Publish(domain.StatusEvent{JobID: "job-a", Status: domain.JobStatusProcessing})

	select {
	case ev := <-a:
		assert.Equal(t, domain.JobStatusProcessing, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("job-a subscriber got nothing")
	}
	select {
	case ev := <-b:
		t.Fatalf("job-b subscriber got %+v", ev)
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(WithBufferSize(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := hub.Subscribe(ctx, "job")
	require.NoError(t, err)

	hub.Publish(domain.StatusEvent{JobID: "job"})
	hub.Publish(domain.StatusEvent{JobID: "job"})

	stats := hub.Stats()
	assert.EqualValues(t, 2, stats.Published)
	assert.EqualValues(t, 1, stats.Dropped)
}

func TestHubUnsubscribesOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Subscribe(ctx, "job")
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers("job"))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, hub.Subscribers("job"))

	// Publishing after close must not panic.
	hub.Publish(domain.StatusEvent{JobID: "job"})
}

func TestHubSubscribeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHub().Subscribe(ctx, "job")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeNotification(t *testing.T) {
	ev, err := decodeNotification(`{"job_id":"j1","status":"completed","progress":100,"image_id":"img"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEvent{JobID: "j1", Status: domain.JobStatusCompleted, Progress: 100, ImageID: "img"}, ev)

	_, err = decodeNotification(`{"status":"completed"}`)
	assert.Error(t, err)
	_, err = decodeNotification(`nope`)
	assert.Error(t, err)
}

type fakeSource struct {
	ch     chan *pq.Notification
	closed chan struct{}
}

func (f *fakeSource) NotificationChannel() <-chan *pq.Notification { return f.ch }
func (f *fakeSource) Ping() error                                  { return nil }
func (f *fakeSource) Close() error {
	close(f.closed)
	return nil
}

func TestListenerRelaysIntoHub(t *testing.T) {
	hub := NewHub()
	src := &fakeSource{ch: make(chan *pq.Notification, 4), closed: make(chan struct{})}

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	events, err := hub.Subscribe(subCtx, "j1")
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- (&PQListener{source: src, hub: hub, logger: discard()}).Run(runCtx) }()

	src.ch <- nil
	src.ch <- &pq.Notification{Channel: StatusChannel, Extra: `garbage`}
	src.ch <- &pq.Notification{Channel: StatusChannel, Extra: `{"job_id":"j1","status":"processing","progress":40}`}

	select {
	case ev := <-events:
		assert.Equal(t, domain.JobStatusProcessing, ev.Status)
		assert.Equal(t, 40, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("notification not relayed")
	}

	stop()
	require.NoError(t, <-done)
	<-src.closed
}

func discard() *infra.Logger { return infra.OrDiscard(nil) }
