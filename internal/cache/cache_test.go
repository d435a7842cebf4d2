package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTTLEvictsLazilyOnRead(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	c := NewTTL[string](time.Minute, clock.Now)

	c.Set("k", "v")
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Len())
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTiersInvalidateAsset(t *testing.T) {
	tiers := NewTiers(Config{SignedURLTTL: time.Hour})
	tiers.URLs.Set("a1:image", domain.Artifact{AssetID: "a1"})
	tiers.URLs.Set("a1:image:0", domain.Artifact{AssetID: "a1"})
	tiers.URLs.Set("a10:image", domain.Artifact{AssetID: "a10"})
	tiers.Viewport.Set("a1:image", domain.Artifact{AssetID: "a1"})
	tiers.Metadata.Set(ListKey(domain.ListFilter{}, ""), &domain.AssetPage{})

	tiers.InvalidateAsset("a1")

	_, ok := tiers.URLs.Get("a1:image")
	assert.False(t, ok)
	_, ok = tiers.URLs.Get("a1:image:0")
	assert.False(t, ok)
	_, ok = tiers.URLs.Get("a10:image")
	assert.True(t, ok)
	assert.Zero(t, tiers.Viewport.Len())
	assert.Zero(t, tiers.Metadata.Len())
}

func TestTiersURLTTLShorterThanSignedURL(t *testing.T) {
	tiers := NewTiers(Config{SignedURLTTL: time.Hour})
	assert.Equal(t, 45*time.Minute, tiers.URLs.TTL())
	assert.Greater(t, tiers.Metadata.TTL(), tiers.URLs.TTL())
	assert.Less(t, tiers.Viewport.TTL(), tiers.URLs.TTL())
}

func TestTiersInitializeClearsOnSessionChange(t *testing.T) {
	tiers := NewTiers(Config{})
	tiers.Initialize("s1")
	tiers.URLs.Set("a:image", domain.Artifact{})
	tiers.Initialize("s1")
	assert.Equal(t, 1, tiers.URLs.Len())
	tiers.Initialize("s2")
	assert.Zero(t, tiers.URLs.Len())
	assert.Equal(t, "s2", tiers.Session())
}

func TestListKeyDistinguishesCursor(t *testing.T) {
	f := domain.ListFilter{Kind: domain.AssetKindVideo, Limit: 20}
	assert.NotEqual(t, ListKey(f, ""), ListKey(f, "c2"))
	assert.Equal(t, ListKey(f, "c2"), ListKey(f, "c2"))
}
