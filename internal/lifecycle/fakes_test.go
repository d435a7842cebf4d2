package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/monitor"
)

type fakePool struct {
	mu        sync.Mutex
	ids       []string
	err       error
	cancelErr error
	enqueued  int
	cancelled []string
}

func (p *fakePool) Enqueue(ctx context.Context, req domain.SubmitRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	id := p.ids[p.enqueued%len(p.ids)]
	p.enqueued++
	return id, nil
}

func (p *fakePool) Cancel(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, jobID)
	return p.cancelErr
}

type fakeStatus struct {
	mu     sync.Mutex
	report domain.StatusReport
	err    error
	calls  atomic.Int32
}

func (s *fakeStatus) set(r domain.StatusReport) {
	s.mu.Lock()
	s.report = r
	s.mu.Unlock()
}

func (s *fakeStatus) Status(ctx context.Context, jobID string) (domain.StatusReport, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report, s.err
}

type fakeResolver struct {
	mu            sync.Mutex
	resolved      []domain.ArtifactRef
	primed        []domain.Artifact
	invalidations int
	session       string
	cleared       int
	err           error
	onResolve     func()
}

func (r *fakeResolver) Initialize(sessionID string) {
	r.mu.Lock()
	r.session = sessionID
	r.mu.Unlock()
}

func (r *fakeResolver) Clear() {
	r.mu.Lock()
	r.cleared++
	r.mu.Unlock()
}

func (r *fakeResolver) Resolve(ctx context.Context, ref domain.ArtifactRef) (domain.Artifact, error) {
	if r.onResolve != nil {
		r.onResolve()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, ref)
	if r.err != nil {
		return domain.Artifact{}, r.err
	}
	return domain.Artifact{
		AssetID:   ref.AssetID,
		Kind:      ref.Kind,
		Bucket:    "user-library",
		Path:      ref.AssetID + ".png",
		SignedURL: "https://cdn.test/" + ref.AssetID,
	}, nil
}

func (r *fakeResolver) Prime(art domain.Artifact) {
	r.mu.Lock()
	r.primed = append(r.primed, art)
	r.mu.Unlock()
}

func (r *fakeResolver) InvalidateListings() {
	r.mu.Lock()
	r.invalidations++
	r.mu.Unlock()
}

type recNotifier struct {
	mu        sync.Mutex
	started   []domain.GenerationJob
	progress  []domain.GenerationJob
	completed []domain.CompletionEvent
	failed    []domain.FailureEvent
	cancelled []string
	// order logs event kinds as they arrive.
	order []string
	// onProgress runs before a progress event is recorded.
	onProgress func()
}

func (n *recNotifier) JobStarted(job domain.GenerationJob) {
	n.mu.Lock()
	n.started = append(n.started, job)
	n.order = append(n.order, "started")
	n.mu.Unlock()
}

func (n *recNotifier) JobProgress(job domain.GenerationJob) {
	if n.onProgress != nil {
		n.onProgress()
	}
	n.mu.Lock()
	n.progress = append(n.progress, job)
	n.order = append(n.order, "progress")
	n.mu.Unlock()
}

func (n *recNotifier) JobCompleted(ev domain.CompletionEvent) {
	n.mu.Lock()
	n.completed = append(n.completed, ev)
	n.order = append(n.order, "completed")
	n.mu.Unlock()
}

func (n *recNotifier) JobFailed(ev domain.FailureEvent) {
	n.mu.Lock()
	n.failed = append(n.failed, ev)
	n.order = append(n.order, "failed")
	n.mu.Unlock()
}

func (n *recNotifier) JobCancelled(jobID string) {
	n.mu.Lock()
	n.cancelled = append(n.cancelled, jobID)
	n.order = append(n.order, "cancelled")
	n.mu.Unlock()
}

func (n *recNotifier) sequence() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.order...)
}

func (n *recNotifier) counts() (started, completed, failed, cancelled int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.started), len(n.completed), len(n.failed), len(n.cancelled)
}

func (n *recNotifier) completions() []domain.CompletionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.CompletionEvent(nil), n.completed...)
}

func (n *recNotifier) failures() []domain.FailureEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.FailureEvent(nil), n.failed...)
}

// fakeWatcher hands the apply callback to the test instead of running
// channels.
type fakeWatcher struct {
	mu      sync.Mutex
	applies map[string]monitor.ApplyFunc
	stopped map[string]bool
	started []string
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{applies: make(map[string]monitor.ApplyFunc), stopped: make(map[string]bool)}
}

func (w *fakeWatcher) Watch(ctx context.Context, jobID string, apply monitor.ApplyFunc) context.CancelFunc {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.applies[jobID] = apply
	w.started = append(w.started, jobID)
	return func() {
		w.mu.Lock()
		w.stopped[jobID] = true
		w.mu.Unlock()
	}
}

func (w *fakeWatcher) apply(jobID string) monitor.ApplyFunc {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applies[jobID]
}

func (w *fakeWatcher) isStopped(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped[jobID]
}

func (w *fakeWatcher) startedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.started)
}

type manualTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *manualTimer) fire() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if !stopped {
		t.f()
	}
}

func (t *manualTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (ts *manualTimers) afterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{d: d, f: f}
	ts.mu.Lock()
	ts.timers = append(ts.timers, t)
	ts.mu.Unlock()
	return t
}

func (ts *manualTimers) last() *manualTimer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.timers) == 0 {
		return nil
	}
	return ts.timers[len(ts.timers)-1]
}
