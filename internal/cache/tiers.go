package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

const (
	DefaultMetadataTTL = time.Hour
	DefaultViewportTTL = 2 * time.Minute
	// URLTTLRatio keeps cached URLs well inside the signed URL's own expiry.
	URLTTLRatio = 0.75
)

// Config sets the lifetime of each tier.
type Config struct {
	SignedURLTTL time.Duration
	MetadataTTL  time.Duration
	ViewportTTL  time.Duration
	Now          func() time.Time
}

// Tiers groups the independent caches used for asset resolution.
type Tiers struct {
	URLs     *TTL[domain.Artifact]
	Metadata *TTL[*domain.AssetPage]
	Viewport *TTL[domain.Artifact]

	mu      sync.Mutex
	session string
}

// NewTiers builds the three tiers from cfg, filling defaults.
func NewTiers(cfg Config) *Tiers {
	signed := cfg.SignedURLTTL
	if signed <= 0 {
		signed = time.Hour
	}
	meta := cfg.MetadataTTL
	if meta <= 0 {
		meta = DefaultMetadataTTL
	}
	view := cfg.ViewportTTL
	if view <= 0 {
		view = DefaultViewportTTL
	}
	return &Tiers{
		URLs:     NewTTL[domain.Artifact](URLTTL(signed), cfg.Now),
		Metadata: NewTTL[*domain.AssetPage](meta, cfg.Now),
		Viewport: NewTTL[domain.Artifact](view, cfg.Now),
	}
}

// URLTTL derives the URL cache lifetime from the signed URL lifetime.
func URLTTL(signed time.Duration) time.Duration {
	return time.Duration(float64(signed) * URLTTLRatio)
}

// Initialize binds the tiers to a session. Switching sessions drops
// everything cached for the previous one.
func (t *Tiers) Initialize(sessionID string) {
	t.mu.Lock()
	changed := t.session != sessionID
	t.session = sessionID
	t.mu.Unlock()
	if changed {
		t.Clear()
	}
}

// Session returns the bound session id.
func (t *Tiers) Session() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Clear empties every tier.
func (t *Tiers) Clear() {
	t.URLs.Clear()
	t.Metadata.Clear()
	t.Viewport.Clear()
}

// InvalidateAsset drops every URL and viewport entry of assetID and all
// listings, since any page may contain it.
func (t *Tiers) InvalidateAsset(assetID string) {
	prefix := assetID + ":"
	t.URLs.DeletePrefix(prefix)
	t.Viewport.DeletePrefix(prefix)
	t.Metadata.Clear()
}

// ListKey serializes a filter set and pagination cursor.
func ListKey(filter domain.ListFilter, cursor string) string {
	raw, _ := json.Marshal(filter)
	return string(raw) + "|" + cursor
}
