// Package realtime delivers push status notifications for generation jobs.
// A Hub fans events out to per-job subscribers; a PQListener feeds the hub
// from Postgres LISTEN/NOTIFY.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 16

// Hub is an in-process topic broker keyed by job id. Slow subscribers lose
// events rather than block publishers; the poll channel covers the gap.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[chan domain.StatusEvent]struct{}
	bufferSize int

	published atomic.Int64
	dropped   atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscriber buffer size.
func WithBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics:     make(map[string]map[chan domain.StatusEvent]struct{}),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe implements domain.StatusSubscriber. The channel closes once ctx
// is done.
func (h *Hub) Subscribe(ctx context.Context, jobID string) (<-chan domain.StatusEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan domain.StatusEvent, h.bufferSize)

	h.mu.Lock()
	subs, ok := h.topics[jobID]
	if !ok {
		subs = make(map[chan domain.StatusEvent]struct{})
		h.topics[jobID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.topics[jobID], ch)
		if len(h.topics[jobID]) == 0 {
			delete(h.topics, jobID)
		}
		close(ch)
	}()
	return ch, nil
}

// Publish delivers ev to every subscriber of ev.JobID without blocking.
func (h *Hub) Publish(ev domain.StatusEvent) {
	h.published.Add(1)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.topics[ev.JobID] {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[jobID])
}

// HubStats reports publish counters.
type HubStats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{Published: h.published.Load(), Dropped: h.dropped.Load()}
}

var _ domain.StatusSubscriber = (*Hub)(nil)
