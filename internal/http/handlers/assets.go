package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

// maxBatchRefs bounds POST /v1/assets/urls.
const maxBatchRefs = 100

type assetItem struct {
	ID            string           `json:"id"`
	JobID         string           `json:"job_id,omitempty"`
	Kind          domain.AssetKind `json:"type"`
	Bucket        string           `json:"bucket"`
	Path          string           `json:"path"`
	Outputs       []string         `json:"outputs,omitempty"`
	ThumbnailPath string           `json:"thumbnail_path,omitempty"`
	Title         string           `json:"title,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

type refPayload struct {
	AssetID string           `json:"asset_id"`
	Kind    domain.AssetKind `json:"type"`
	Index   *int             `json:"index,omitempty"`
}

func (p refPayload) ref() domain.ArtifactRef {
	if p.Index != nil {
		return domain.IndexedArtifact(p.AssetID, p.Kind, *p.Index)
	}
	return domain.PrimaryArtifact(p.AssetID, p.Kind)
}

type urlResult struct {
	AssetID   string           `json:"asset_id"`
	Kind      domain.AssetKind `json:"type"`
	Index     *int             `json:"index,omitempty"`
	Bucket    string           `json:"bucket,omitempty"`
	URL       string           `json:"url,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func newURLResult(ref domain.ArtifactRef, art domain.Artifact, err error) urlResult {
	out := urlResult{AssetID: ref.AssetID, Kind: ref.Kind}
	if ref.Indexed {
		i := ref.Index
		out.Index = &i
	}
	switch {
	case err != nil:
		out.Error = err.Error()
	case art.IntegrityErr != nil:
		out.Bucket = art.Bucket
		out.Error = art.IntegrityErr.Error()
	default:
		out.Bucket = art.Bucket
		out.URL = art.SignedURL
		if !art.ExpiresAt.IsZero() {
			exp := art.ExpiresAt
			out.ExpiresAt = &exp
		}
	}
	return out
}

func (a *App) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ListFilter{
		Kind:   domain.AssetKind(q.Get("type")),
		JobID:  q.Get("job_id"),
		Search: q.Get("q"),
	}
	if filter.Kind != "" {
		if err := filter.Kind.Validate(); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	page, err := a.Assets.List(r.Context(), filter, q.Get("cursor"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]assetItem, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, assetItem{
			ID:            rec.ID,
			JobID:         rec.JobID,
			Kind:          rec.Kind,
			Bucket:        rec.Bucket,
			Path:          rec.Path,
			Outputs:       rec.Outputs,
			ThumbnailPath: rec.ThumbnailPath,
			Title:         rec.Title,
			CreatedAt:     rec.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "next_cursor": page.NextCursor})
}

// AssetURL resolves one output: ?type=image|video and optional ?index=n.
func (a *App) AssetURL(w http.ResponseWriter, r *http.Request) {
	p := refPayload{AssetID: chi.URLParam(r, "id"), Kind: domain.AssetKind(r.URL.Query().Get("type"))}
	if p.Kind == "" {
		p.Kind = domain.AssetKindImage
	}
	if raw := r.URL.Query().Get("index"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil || i < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "index must be a non-negative integer")
			return
		}
		p.Index = &i
	}
	ref := p.ref()
	art, err := a.Assets.Resolve(r.Context(), ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newURLResult(ref, art, nil))
}

// ResolveURLs resolves a visible set of outputs. Per-ref failures are
// reported inline.
func (a *App) ResolveURLs(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refs []refPayload `json:"refs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(body.Refs) > maxBatchRefs {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("at most %d refs per request", maxBatchRefs))
		return
	}
	refs := make([]domain.ArtifactRef, len(body.Refs))
	for i, p := range body.Refs {
		refs[i] = p.ref()
	}
	results, err := a.Assets.ResolveVisible(r.Context(), refs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]urlResult, len(results))
	for i, res := range results {
		out[i] = newURLResult(res.Ref, res.Artifact, res.Err)
	}
	a.json(w, http.StatusOK, map[string]any{"results": out})
}

func (a *App) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	report, err := a.Assets.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	body := map[string]any{
		"asset_id":     report.AssetID,
		"removed":      report.Removed,
		"failed_paths": report.FailedPaths,
	}
	if report.IntegrityErr != nil {
		body["warning"] = report.IntegrityErr.Error()
	}
	a.json(w, http.StatusOK, body)
}
