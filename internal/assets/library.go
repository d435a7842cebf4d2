package assets

import (
	"context"
	"fmt"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/cache"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/resilience"
)

// List returns one page of asset records, served from the metadata tier when
// fresh.
func (r *Resolver) List(ctx context.Context, filter domain.ListFilter, cursor string) (*domain.AssetPage, error) {
	key := cache.ListKey(filter, cursor)
	if page, ok := r.caches.Metadata.Get(key); ok {
		return page, nil
	}
	page, err := resilience.Dedupe(ctx, r.inflight, "list:"+key, func(ctx context.Context) (*domain.AssetPage, error) {
		return resilience.Retry(ctx, r.retry, func(ctx context.Context) (*domain.AssetPage, error) {
			return resilience.WithTimeout(ctx, r.timeout, func(ctx context.Context) (*domain.AssetPage, error) {
				return r.repo.List(ctx, filter, cursor)
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("assets: list: %w", err)
	}
	r.caches.Metadata.Set(key, page)
	return page, nil
}

// InvalidateListings drops every cached page.
func (r *Resolver) InvalidateListings() {
	r.caches.Metadata.Clear()
}

// DeleteReport summarizes a delete.
type DeleteReport struct {
	AssetID      string   `json:"asset_id"`
	Removed      int      `json:"removed"`
	FailedPaths  []string `json:"failed_paths,omitempty"`
	IntegrityErr error    `json:"-"`
}

// Delete removes every stored file of the asset, then the record, then every
// cache entry for it. File removal is best effort: failures are logged and
// reported but do not keep the record alive.
func (r *Resolver) Delete(ctx context.Context, assetID string) (DeleteReport, error) {
	report := DeleteReport{AssetID: assetID}
	rec, err := r.lookup(ctx, assetID)
	if err != nil {
		return report, fmt.Errorf("assets: delete %s: %w", assetID, err)
	}

	paths := rec.Paths()
	switch {
	case rec.Bucket == "":
		report.IntegrityErr = domain.ErrMissingBucket
		report.FailedPaths = paths
		r.logger.Warn().Str("asset_id", assetID).Int("paths", len(paths)).Msg("asset record has no bucket; stored files left in place")
	case len(paths) > 0:
		res, err := resilience.Batch(ctx, paths, resilience.BatchOptions{
			Concurrency: r.deleteConcurrency,
			Sleep:       r.sleep,
		}, func(ctx context.Context, path string) (struct{}, error) {
			return resilience.Retry(ctx, r.retry, func(ctx context.Context) (struct{}, error) {
				return resilience.WithTimeout(ctx, r.timeout, func(ctx context.Context) (struct{}, error) {
					return struct{}{}, r.store.Remove(ctx, rec.Bucket, path)
				})
			})
		})
		if err != nil {
			return report, fmt.Errorf("assets: delete %s: %w", assetID, err)
		}
		report.Removed = len(res.Successes)
		for _, f := range res.Failures {
			report.FailedPaths = append(report.FailedPaths, f.Item)
			r.logger.Warn().Err(f.Err).Str("asset_id", assetID).Str("bucket", rec.Bucket).Str("path", f.Item).Msg("remove stored file failed")
		}
	}

	if err := r.repo.Delete(ctx, assetID); err != nil {
		return report, fmt.Errorf("assets: delete %s record: %w", assetID, err)
	}
	r.caches.InvalidateAsset(assetID)
	r.logger.Info().Str("asset_id", assetID).Int("removed", report.Removed).Int("failed", len(report.FailedPaths)).Msg("asset deleted")
	return report, nil
}
