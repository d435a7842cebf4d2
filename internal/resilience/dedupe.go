package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Deduper collapses concurrent calls sharing a key into one underlying call.
// The key is released as soon as the call settles, so later calls run again.
type Deduper struct {
	group singleflight.Group

	mu      sync.Mutex
	waiting map[string]int
}

// NewDeduper returns an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{waiting: make(map[string]int)}
}

// Waiting returns how many callers are attached to the in-flight call for key.
func (d *Deduper) Waiting(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting[key]
}

func (d *Deduper) attach(key string) {
	d.mu.Lock()
	d.waiting[key]++
	d.mu.Unlock()
}

func (d *Deduper) detach(key string) {
	d.mu.Lock()
	if d.waiting[key] <= 1 {
		delete(d.waiting, key)
	} else {
		d.waiting[key]--
	}
	d.mu.Unlock()
}

// Dedupe runs op once per key among concurrent callers; every caller gets the
// same result. op runs detached from the caller's cancellation so one
// impatient caller cannot fail the others; each caller still stops waiting
// when its own ctx is done.
func Dedupe[T any](ctx context.Context, d *Deduper, key string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	ch := d.group.DoChan(key, func() (any, error) {
		return op(context.WithoutCancel(ctx))
	})
	d.attach(key)
	defer d.detach(key)

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}
