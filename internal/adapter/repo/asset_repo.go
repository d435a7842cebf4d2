package repo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/sqlinline"
)

const (
	defaultListLimit = 24
	maxListLimit     = 100
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// Get returns the stored record for assetID. Unknown or deleted ids yield
// domain.ErrNotFound.
func (r *AssetRepositoryPG) Get(ctx context.Context, assetID string) (*domain.AssetRecord, error) {
	if _, err := uuid.Parse(assetID); err != nil {
		return nil, fmt.Errorf("%w: asset id %q", domain.ErrValidation, assetID)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGeneratedAssetByID, assetID)
	rec, err := scanAsset(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("asset %s: %w", assetID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("select asset: %w", err)
	}
	return rec, nil
}

// List pages through assets newest first. cursor is opaque and empty on the
// first page.
func (r *AssetRepositoryPG) List(ctx context.Context, filter domain.ListFilter, cursor string) (*domain.AssetPage, error) {
	if filter.Kind != "" {
		if err := filter.Kind.Validate(); err != nil {
			return nil, err
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var (
		afterTime *time.Time
		afterID   *string
	)
	if cursor != "" {
		ts, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		afterTime, afterID = &ts, &id
	}

	rows, err := r.sql.Query(ctx, sqlinline.QListGeneratedAssets,
		string(filter.Kind), filter.JobID, strings.TrimSpace(filter.Search), limit+1, afterTime, afterID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	page := &domain.AssetPage{}
	for rows.Next() {
		rec, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		page.Items = append(page.Items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Delete soft-deletes the record. Deleting an unknown id is ErrNotFound.
func (r *AssetRepositoryPG) Delete(ctx context.Context, assetID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteGeneratedAsset, assetID)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", assetID, domain.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (*domain.AssetRecord, error) {
	var (
		rec     domain.AssetRecord
		kind    string
		outputs []byte
	)
	if err := row.Scan(&rec.ID, &rec.JobID, &kind, &rec.Bucket, &rec.Path, &outputs, &rec.ThumbnailPath, &rec.Title, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Kind = domain.AssetKind(kind)
	if err := rec.Kind.Validate(); err != nil {
		return nil, err
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &rec.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
	}
	return &rec, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	tsPart, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	if _, err := uuid.Parse(id); err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	return ts, id, nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
