package domain

import (
	"fmt"
	"strconv"
	"time"
)

// AssetKind enumerates asset types. The set is closed: consumers switch over
// both values and treat anything else as ErrValidation.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// Validate rejects kinds outside the closed set.
func (k AssetKind) Validate() error {
	switch k {
	case AssetKindImage, AssetKindVideo:
		return nil
	default:
		return fmt.Errorf("%w: asset kind %q", ErrValidation, k)
	}
}

// AssetRecord is the stored metadata of a generated asset. Bucket is written
// when the asset is created and is the only source of truth for where the
// files live.
type AssetRecord struct {
	ID            string
	JobID         string
	Kind          AssetKind
	Bucket        string
	Path          string
	Outputs       []string
	ThumbnailPath string
	Title         string
	CreatedAt     time.Time
}

// Paths returns every stored object key of the record: primary, each
// multi-output entry, then the thumbnail. Duplicates and blanks are dropped.
func (r AssetRecord) Paths() []string {
	seen := make(map[string]struct{}, len(r.Outputs)+2)
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	add(r.Path)
	for _, p := range r.Outputs {
		add(p)
	}
	add(r.ThumbnailPath)
	return out
}

// ArtifactRef addresses one displayable output. Multi-output jobs address each
// output by parent id and index.
type ArtifactRef struct {
	AssetID string
	Kind    AssetKind
	Index   int
	Indexed bool
}

// PrimaryArtifact refers to the single default output of an asset.
func PrimaryArtifact(assetID string, kind AssetKind) ArtifactRef {
	return ArtifactRef{AssetID: assetID, Kind: kind}
}

// IndexedArtifact refers to output i of a multi-output asset.
func IndexedArtifact(assetID string, kind AssetKind, i int) ArtifactRef {
	return ArtifactRef{AssetID: assetID, Kind: kind, Index: i, Indexed: true}
}

// CacheKey is "id:kind" or "id:kind:index".
func (r ArtifactRef) CacheKey() string {
	key := r.AssetID + ":" + string(r.Kind)
	if r.Indexed {
		key += ":" + strconv.Itoa(r.Index)
	}
	return key
}

// Artifact is a resolved output. SignedURL is empty when the record could
// not be signed; IntegrityErr then says why.
type Artifact struct {
	AssetID      string    `json:"asset_id"`
	Kind         AssetKind `json:"type"`
	Index        int       `json:"index"`
	Indexed      bool      `json:"indexed,omitempty"`
	Bucket       string    `json:"bucket"`
	Path         string    `json:"path"`
	SignedURL    string    `json:"signed_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	IntegrityErr error     `json:"-"`
}

// Ref returns the reference that resolves to a.
func (a Artifact) Ref() ArtifactRef {
	return ArtifactRef{AssetID: a.AssetID, Kind: a.Kind, Index: a.Index, Indexed: a.Indexed}
}

// ListFilter narrows asset listings.
type ListFilter struct {
	Kind   AssetKind `json:"kind,omitempty"`
	JobID  string    `json:"job_id,omitempty"`
	Search string    `json:"search,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// AssetPage is one page of listed assets.
type AssetPage struct {
	Items      []AssetRecord
	NextCursor string
}
