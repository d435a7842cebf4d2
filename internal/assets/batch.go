package assets

import (
	"context"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/resilience"
)

// Result is the outcome of resolving one ref in a batch.
type Result struct {
	Ref      domain.ArtifactRef `json:"-"`
	Artifact domain.Artifact    `json:"artifact"`
	Err      error              `json:"-"`
}

// ResolveBatch resolves refs in sequential chunks with a pause between
// chunks. Per-ref failures land in the result; the call only fails when ctx
// does. Results keep the order of refs.
func (r *Resolver) ResolveBatch(ctx context.Context, refs []domain.ArtifactRef) ([]Result, error) {
	res, err := resilience.Batch(ctx, refs, resilience.BatchOptions{
		Concurrency: r.batchSize,
		ChunkDelay:  r.batchDelay,
		Sleep:       r.sleep,
	}, r.Resolve)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(refs))
	for _, s := range res.Successes {
		out[s.Index] = Result{Ref: s.Item, Artifact: s.Result}
	}
	for _, f := range res.Failures {
		out[f.Index] = Result{Ref: f.Item, Err: f.Err}
	}
	return out, nil
}

// ResolveVisible serves refs on screen: viewport entries first, then cached
// URLs, and a batch resolution for the rest.
func (r *Resolver) ResolveVisible(ctx context.Context, refs []domain.ArtifactRef) ([]Result, error) {
	out := make([]Result, len(refs))
	var (
		missing []domain.ArtifactRef
		slots   []int
	)
	for i, ref := range refs {
		key := ref.CacheKey()
		if art, ok := r.caches.Viewport.Get(key); ok {
			out[i] = Result{Ref: ref, Artifact: art}
			continue
		}
		if art, ok := r.caches.URLs.Get(key); ok {
			r.caches.Viewport.Set(key, art)
			out[i] = Result{Ref: ref, Artifact: art}
			continue
		}
		missing = append(missing, ref)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	resolved, err := r.ResolveBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, res := range resolved {
		if res.Err == nil && res.Artifact.SignedURL != "" {
			r.caches.Viewport.Set(res.Ref.CacheKey(), res.Artifact)
		}
		out[slots[j]] = res
	}
	return out, nil
}
