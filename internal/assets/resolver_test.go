package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/resilience"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*domain.AssetRecord
	gets    int
	lists   int
	deleted []string
	gate    chan struct{}
}

func newFakeRepo(recs ...domain.AssetRecord) *fakeRepo {
	r := &fakeRepo{records: make(map[string]*domain.AssetRecord)}
	for i := range recs {
		r.records[recs[i].ID] = &recs[i]
	}
	return r
}

func (r *fakeRepo) Get(ctx context.Context, id string) (*domain.AssetRecord, error) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRepo) List(ctx context.Context, filter domain.ListFilter, cursor string) (*domain.AssetPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists++
	page := &domain.AssetPage{}
	for _, rec := range r.records {
		page.Items = append(page.Items, *rec)
	}
	return page, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	delete(r.records, id)
	return nil
}

func (r *fakeRepo) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

type fakeStore struct {
	mu        sync.Mutex
	signErr   map[string]error // by bucket
	removeErr map[string]error // by path
	signed    []string
	removed   []string

	active atomic.Int32
	peak   atomic.Int32
}

func (s *fakeStore) SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signed = append(s.signed, bucket+"/"+path)
	if err := s.signErr[bucket]; err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.test/%s/%s?ttl=%d", bucket, path, int(ttl.Seconds())), nil
}

func (s *fakeStore) Remove(ctx context.Context, bucket, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, bucket+"/"+path)
	return s.removeErr[path]
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newResolver(t *testing.T, repo *fakeRepo, store *fakeStore, sleeper *sleepRecorder, fallbacks map[string][]string) *Resolver {
	t.Helper()
	r, err := NewResolver(Options{
		Repo:            repo,
		Store:           store,
		BucketFallbacks: fallbacks,
		Retry:           resilience.RetryOptions{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Sleep:           sleeper.Sleep,
	})
	require.NoError(t, err)
	return r
}

func imageRecord(id, bucket string) domain.AssetRecord {
	return domain.AssetRecord{ID: id, Kind: domain.AssetKindImage, Bucket: bucket, Path: id + ".png"}
}

func TestResolveMissingBucketReturnsNoURL(t *testing.T) {
	repo := newFakeRepo(imageRecord("a1", ""))
	store := &fakeStore{}
	r := newResolver(t, repo, store, &sleepRecorder{}, nil)

	art, err := r.Resolve(context.Background(), domain.PrimaryArtifact("a1", domain.AssetKindImage))
	require.NoError(t, err)
	assert.Empty(t, art.SignedURL)
	assert.Empty(t, art.Bucket)
	assert.ErrorIs(t, art.IntegrityErr, domain.ErrMissingBucket)
	assert.Empty(t, store.signed, "no bucket may be guessed")
}

func TestResolveCachesSignedURL(t *testing.T) {
	repo := newFakeRepo(imageRecord("a1", "user-library"))
	store := &fakeStore{}
	r := newResolver(t, repo, store, &sleepRecorder{}, nil)
	ref := domain.PrimaryArtifact("a1", domain.AssetKindImage)

	first, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/user-library/a1.png?ttl=3600", first.SignedURL)
	assert.False(t, first.ExpiresAt.IsZero())

	second, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.getCount())
	assert.Len(t, store.signed, 1)
}

func TestResolveIndexedOutputs(t *testing.T) {
	rec := imageRecord("a1", "user-library")
	rec.Outputs = []string{"a1-0.png", "a1-1.png"}
	r := newResolver(t, newFakeRepo(rec), &fakeStore{}, &sleepRecorder{}, nil)

	art, err := r.Resolve(context.Background(), domain.IndexedArtifact("a1", domain.AssetKindImage, 1))
	require.NoError(t, err)
	assert.Equal(t, "a1-1.png", art.Path)
	assert.True(t, art.Indexed)

	_, err = r.Resolve(context.Background(), domain.IndexedArtifact("a1", domain.AssetKindImage, 2))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveRejectsKindMismatchAndUnknownKind(t *testing.T) {
	r := newResolver(t, newFakeRepo(imageRecord("a1", "b")), &fakeStore{}, &sleepRecorder{}, nil)

	_, err := r.Resolve(context.Background(), domain.PrimaryArtifact("a1", domain.AssetKindVideo))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Resolve(context.Background(), domain.PrimaryArtifact("a1", "audio"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResolveFallsBackOnTransientSignFailure(t *testing.T) {
	store := &fakeStore{signErr: map[string]error{"workspace-temp": domain.ErrServer}}
	r := newResolver(t, newFakeRepo(imageRecord("a1", "workspace-temp")), store, &sleepRecorder{},
		map[string][]string{"workspace-temp": {"user-library"}})

	art, err := r.Resolve(context.Background(), domain.PrimaryArtifact("a1", domain.AssetKindImage))
	require.NoError(t, err)
	assert.Equal(t, "user-library", art.Bucket)
	// two attempts on the primary (one retry), then the mirror
	assert.Equal(t, []string{"workspace-temp/a1.png", "workspace-temp/a1.png", "user-library/a1.png"}, store.signed)
}

func TestResolveStopsOnFatalSignFailure(t *testing.T) {
	store := &fakeStore{signErr: map[string]error{"workspace-temp": domain.ErrForbidden}}
	r := newResolver(t, newFakeRepo(imageRecord("a1", "workspace-temp")), store, &sleepRecorder{},
		map[string][]string{"workspace-temp": {"user-library"}})

	_, err := r.Resolve(context.Background(), domain.PrimaryArtifact("a1", domain.AssetKindImage))
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, []string{"workspace-temp/a1.png"}, store.signed)
}

func TestResolveDeduplicatesConcurrentCalls(t *testing.T) {
	repo := newFakeRepo(imageRecord("a1", "user-library"))
	repo.gate = make(chan struct{})
	r := newResolver(t, repo, &fakeStore{}, &sleepRecorder{}, nil)
	ref := domain.PrimaryArtifact("a1", domain.AssetKindImage)

	const callers = 6
	var wg sync.WaitGroup
	urls := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art, err := r.Resolve(context.Background(), ref)
			assert.NoError(t, err)
			urls[i] = art.SignedURL
		}()
	}
	require.Eventually(t, func() bool { return r.inflight.Waiting(ref.CacheKey()) == callers },
		time.Second, time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, 1, repo.getCount())
	for _, u := range urls {
		assert.Equal(t, urls[0], u)
	}
}

func TestResolveBatchTwelveRefsRunsThreeChunks(t *testing.T) {
	var recs []domain.AssetRecord
	var refs []domain.ArtifactRef
	for i := range 12 {
		id := fmt.Sprintf("a%02d", i)
		recs = append(recs, imageRecord(id, "user-library"))
		refs = append(refs, domain.PrimaryArtifact(id, domain.AssetKindImage))
	}
	refs[11] = domain.PrimaryArtifact("missing", domain.AssetKindImage)

	sleeper := &sleepRecorder{}
	store := &fakeStore{}
	r := newResolver(t, newFakeRepo(recs...), store, sleeper, nil)

	results, err := r.ResolveBatch(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, results, 12)

	assert.Equal(t, []time.Duration{DefaultBatchDelay, DefaultBatchDelay}, sleeper.sleeps)
	assert.LessOrEqual(t, store.peak.Load(), int32(DefaultBatchSize))
	for i, res := range results[:11] {
		require.NoError(t, res.Err, "ref %d", i)
		assert.Equal(t, refs[i].AssetID, res.Artifact.AssetID)
	}
	assert.ErrorIs(t, results[11].Err, domain.ErrNotFound)
}

func TestResolveVisiblePrefersViewport(t *testing.T) {
	repo := newFakeRepo(imageRecord("a1", "user-library"), imageRecord("a2", "user-library"))
	r := newResolver(t, repo, &fakeStore{}, &sleepRecorder{}, nil)

	primed := domain.Artifact{AssetID: "a1", Kind: domain.AssetKindImage, Bucket: "user-library", SignedURL: "https://primed"}
	r.Prime(primed)

	results, err := r.ResolveVisible(context.Background(), []domain.ArtifactRef{
		domain.PrimaryArtifact("a1", domain.AssetKindImage),
		domain.PrimaryArtifact("a2", domain.AssetKindImage),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://primed", results[0].Artifact.SignedURL)
	assert.True(t, strings.HasPrefix(results[1].Artifact.SignedURL, "https://cdn.test/"))
	assert.Equal(t, 1, repo.getCount())

	_, ok := r.caches.Viewport.Get("a2:image")
	assert.True(t, ok)
}

func TestListUsesMetadataTier(t *testing.T) {
	repo := newFakeRepo(imageRecord("a1", "b"))
	r := newResolver(t, repo, &fakeStore{}, &sleepRecorder{}, nil)
	ctx := context.Background()

	_, err := r.List(ctx, domain.ListFilter{Kind: domain.AssetKindImage}, "")
	require.NoError(t, err)
	_, err = r.List(ctx, domain.ListFilter{Kind: domain.AssetKindImage}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lists)

	r.InvalidateListings()
	_, err = r.List(ctx, domain.ListFilter{Kind: domain.AssetKindImage}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)
}

func TestDeleteRemovesFilesRecordAndCaches(t *testing.T) {
	rec := imageRecord("a1", "user-library")
	rec.Outputs = []string{"a1.png", "a1-1.png"}
	rec.ThumbnailPath = "a1-thumb.png"
	repo := newFakeRepo(rec)
	store := &fakeStore{removeErr: map[string]error{"a1-1.png": domain.ErrForbidden}}
	r := newResolver(t, repo, store, &sleepRecorder{}, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, domain.PrimaryArtifact("a1", domain.AssetKindImage))
	require.NoError(t, err)
	_, err = r.List(ctx, domain.ListFilter{}, "")
	require.NoError(t, err)

	report, err := r.Delete(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, []string{"a1-1.png"}, report.FailedPaths)
	assert.ElementsMatch(t, []string{"user-library/a1.png", "user-library/a1-1.png", "user-library/a1-thumb.png"}, store.removed)
	assert.Equal(t, []string{"a1"}, repo.deleted)

	_, ok := r.caches.URLs.Get("a1:image")
	assert.False(t, ok)
	assert.Zero(t, r.caches.Metadata.Len())
}

func TestDeleteWithoutBucketKeepsFiles(t *testing.T) {
	repo := newFakeRepo(imageRecord("a1", ""))
	store := &fakeStore{}
	r := newResolver(t, repo, store, &sleepRecorder{}, nil)

	report, err := r.Delete(context.Background(), "a1")
	require.NoError(t, err)
	assert.ErrorIs(t, report.IntegrityErr, domain.ErrMissingBucket)
	assert.Empty(t, store.removed)
	assert.Equal(t, []string{"a1"}, repo.deleted)
}

func TestDeleteUnknownAsset(t *testing.T) {
	r := newResolver(t, newFakeRepo(), &fakeStore{}, &sleepRecorder{}, nil)
	_, err := r.Delete(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNewResolverRequiresDeps(t *testing.T) {
	_, err := NewResolver(Options{})
	assert.Error(t, err)
}
