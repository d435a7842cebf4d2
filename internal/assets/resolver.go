// Package assets turns stored asset records into time-limited signed URLs.
// The bucket recorded on the asset is authoritative; it is never inferred
// from quality, model or path.
package assets

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/cache"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/resilience"
)

const (
	DefaultSignedURLTTL      = time.Hour
	DefaultBatchSize         = 5
	DefaultBatchDelay        = 100 * time.Millisecond
	DefaultDeleteConcurrency = 3
	DefaultCallTimeout       = 10 * time.Second
)

// Options configures a Resolver. Repo and Store are required.
type Options struct {
	Repo   domain.AssetRepository
	Store  domain.ObjectStore
	Caches *cache.Tiers

	SignedURLTTL time.Duration
	// BucketFallbacks lists mirror buckets tried, in order, after the
	// recorded bucket fails with a transient error.
	BucketFallbacks map[string][]string
	// Limiter paces signing calls when set.
	Limiter *rate.Limiter

	Retry       resilience.RetryOptions
	CallTimeout time.Duration

	BatchSize         int
	BatchDelay        time.Duration
	DeleteConcurrency int

	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	Logger *infra.Logger
}

// Resolver implements artifact resolution with caching, deduplication,
// retries and bucket fallback.
type Resolver struct {
	repo      domain.AssetRepository
	store     domain.ObjectStore
	caches    *cache.Tiers
	ttl       time.Duration
	fallbacks map[string][]string
	limiter   *rate.Limiter
	retry     resilience.RetryOptions
	timeout   time.Duration

	batchSize         int
	batchDelay        time.Duration
	deleteConcurrency int

	inflight *resilience.Deduper
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   *infra.Logger
}

func NewResolver(opts Options) (*Resolver, error) {
	if opts.Repo == nil || opts.Store == nil {
		return nil, fmt.Errorf("assets: repository and object store are required")
	}
	r := &Resolver{
		repo:              opts.Repo,
		store:             opts.Store,
		caches:            opts.Caches,
		ttl:               opts.SignedURLTTL,
		fallbacks:         opts.BucketFallbacks,
		limiter:           opts.Limiter,
		retry:             opts.Retry,
		timeout:           opts.CallTimeout,
		batchSize:         opts.BatchSize,
		batchDelay:        opts.BatchDelay,
		deleteConcurrency: opts.DeleteConcurrency,
		inflight:          resilience.NewDeduper(),
		sleep:             opts.Sleep,
		now:               opts.Now,
		logger:            infra.OrDiscard(opts.Logger),
	}
	if r.ttl <= 0 {
		r.ttl = DefaultSignedURLTTL
	}
	if r.caches == nil {
		r.caches = cache.NewTiers(cache.Config{SignedURLTTL: r.ttl, Now: opts.Now})
	}
	if r.retry.MaxRetries == 0 && r.retry.BaseDelay == 0 {
		r.retry = resilience.DefaultRetryOptions()
	}
	if r.sleep == nil {
		r.sleep = resilience.Sleep
	}
	if r.retry.Sleep == nil {
		r.retry.Sleep = r.sleep
	}
	if r.timeout <= 0 {
		r.timeout = DefaultCallTimeout
	}
	if r.batchSize <= 0 {
		r.batchSize = DefaultBatchSize
	}
	if r.batchDelay <= 0 {
		r.batchDelay = DefaultBatchDelay
	}
	if r.deleteConcurrency <= 0 {
		r.deleteConcurrency = DefaultDeleteConcurrency
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Initialize binds the caches to sessionID.
func (r *Resolver) Initialize(sessionID string) {
	r.caches.Initialize(sessionID)
}

// Clear drops every cached URL, listing and viewport entry.
func (r *Resolver) Clear() {
	r.caches.Clear()
}

// Resolve returns the artifact for ref with a signed URL. A record without a
// bucket resolves to an artifact without URL and IntegrityErr set.
func (r *Resolver) Resolve(ctx context.Context, ref domain.ArtifactRef) (domain.Artifact, error) {
	if err := ref.Kind.Validate(); err != nil {
		return domain.Artifact{}, err
	}
	key := ref.CacheKey()
	if art, ok := r.caches.URLs.Get(key); ok {
		return art, nil
	}
	return resilience.Dedupe(ctx, r.inflight, key, func(ctx context.Context) (domain.Artifact, error) {
		return r.resolve(ctx, ref)
	})
}

func (r *Resolver) resolve(ctx context.Context, ref domain.ArtifactRef) (domain.Artifact, error) {
	rec, err := r.lookup(ctx, ref.AssetID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if rec.Kind != ref.Kind {
		return domain.Artifact{}, fmt.Errorf("assets: %w: %s is %s, not %s", domain.ErrValidation, rec.ID, rec.Kind, ref.Kind)
	}

	path, err := selectPath(rec, ref)
	if err != nil {
		return domain.Artifact{}, err
	}
	art := domain.Artifact{
		AssetID: rec.ID,
		Kind:    rec.Kind,
		Index:   ref.Index,
		Indexed: ref.Indexed,
		Bucket:  rec.Bucket,
		Path:    path,
	}

	if rec.Bucket == "" {
		art.IntegrityErr = domain.ErrMissingBucket
		r.logger.Warn().
			Str("asset_id", rec.ID).
			Str("job_id", rec.JobID).
			Str("path", path).
			Msg("asset record has no bucket; returning artifact without url")
		return art, nil
	}

	expiresAt := r.now().Add(r.ttl)
	signed, err := resilience.Fallback(ctx, rec.Bucket, r.fallbacks[rec.Bucket],
		func(ctx context.Context, bucket string) (domain.Artifact, error) {
			u, err := r.sign(ctx, bucket, path)
			if err != nil {
				return domain.Artifact{}, err
			}
			out := art
			out.Bucket = bucket
			out.SignedURL = u
			out.ExpiresAt = expiresAt
			return out, nil
		},
		func(bucket string, err error) {
			r.logger.Warn().Err(err).Str("asset_id", rec.ID).Str("bucket", bucket).Msg("sign url failed")
		})
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("assets: sign %s: %w", rec.ID, err)
	}

	r.caches.URLs.Set(ref.CacheKey(), signed)
	return signed, nil
}

func (r *Resolver) lookup(ctx context.Context, assetID string) (*domain.AssetRecord, error) {
	return resilience.Retry(ctx, r.retry, func(ctx context.Context) (*domain.AssetRecord, error) {
		return resilience.WithTimeout(ctx, r.timeout, func(ctx context.Context) (*domain.AssetRecord, error) {
			return r.repo.Get(ctx, assetID)
		})
	})
}

func (r *Resolver) sign(ctx context.Context, bucket, path string) (string, error) {
	return resilience.Retry(ctx, r.retry, func(ctx context.Context) (string, error) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		return resilience.WithTimeout(ctx, r.timeout, func(ctx context.Context) (string, error) {
			return r.store.SignURL(ctx, bucket, path, r.ttl)
		})
	})
}

func selectPath(rec *domain.AssetRecord, ref domain.ArtifactRef) (string, error) {
	if ref.Indexed {
		if ref.Index < 0 || ref.Index >= len(rec.Outputs) {
			return "", fmt.Errorf("assets: %w: %s has no output %d", domain.ErrNotFound, rec.ID, ref.Index)
		}
		return rec.Outputs[ref.Index], nil
	}
	if rec.Path != "" {
		return rec.Path, nil
	}
	if len(rec.Outputs) > 0 && rec.Outputs[0] != "" {
		return rec.Outputs[0], nil
	}
	return "", fmt.Errorf("assets: %w: %s has no stored path", domain.ErrNotFound, rec.ID)
}

// Prime records an artifact the UI already has, so the next render skips
// resolution.
func (r *Resolver) Prime(art domain.Artifact) {
	key := art.Ref().CacheKey()
	r.caches.Viewport.Set(key, art)
	if art.SignedURL != "" {
		r.caches.URLs.Set(key, art)
	}
}
