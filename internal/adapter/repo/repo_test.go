package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

type stubExecutor struct {
	row      func(dest ...any) error
	rows     [][]any
	queryErr error
	execTag  pgconn.CommandTag
	execErr  error

	lastQuery string
	lastArgs  []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.lastQuery, s.lastArgs = query, args
	return s.execTag, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.lastQuery, s.lastArgs = query, args
	return stubRow{scan: s.row}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.lastQuery, s.lastArgs = query, args
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return &stubRows{values: s.rows, idx: -1}, nil
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubRows struct {
	values [][]any
	idx    int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }
func (r *stubRows) Values() ([]any, error)                       { return r.values[r.idx], nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.values)
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(dest, r.values[r.idx])
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(values))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", dest[i])
		}
	}
	return nil
}

func assetRow(id string, created time.Time) []any {
	return []any{id, "", "image", "user-library", id + ".png", []byte(`["a.png","b.png"]`), "", "cat", created}
}

func TestJobStatus(t *testing.T) {
	exec := &stubExecutor{row: func(dest ...any) error {
		return assign(dest, []any{"running", 42, "", "img-1", ""})
	}}
	report, err := NewJobRepository(exec).Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, report.Status)
	assert.Equal(t, 42, report.Progress)
	assert.Equal(t, "img-1", report.ImageID)
	assert.Equal(t, []any{"job-1"}, exec.lastArgs)
}

func TestJobStatusNotFound(t *testing.T) {
	_, err := NewJobRepository(&stubExecutor{}).Status(context.Background(), "job-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssetGet(t *testing.T) {
	id := "8f2d7a40-1c1e-4b51-9d0a-3f6f1e1b2c3d"
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exec := &stubExecutor{row: func(dest ...any) error { return assign(dest, assetRow(id, created)) }}

	rec, err := NewAssetRepository(exec).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.AssetKindImage, rec.Kind)
	assert.Equal(t, "user-library", rec.Bucket)
	assert.Equal(t, []string{"a.png", "b.png"}, rec.Outputs)
	assert.Equal(t, created, rec.CreatedAt)
}

func TestAssetGetRejectsBadID(t *testing.T) {
	_, err := NewAssetRepository(&stubExecutor{}).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAssetGetUnknownKind(t *testing.T) {
	id := "8f2d7a40-1c1e-4b51-9d0a-3f6f1e1b2c3d"
	exec := &stubExecutor{row: func(dest ...any) error {
		row := assetRow(id, time.Now())
		row[2] = "audio"
		return assign(dest, row)
	}}
	_, err := NewAssetRepository(exec).Get(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAssetListPagesWithCursor(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := []string{
		"00000000-0000-4000-8000-000000000003",
		"00000000-0000-4000-8000-000000000002",
		"00000000-0000-4000-8000-000000000001",
	}
	exec := &stubExecutor{}
	for i, id := range ids {
		exec.rows = append(exec.rows, assetRow(id, base.Add(-time.Duration(i)*time.Minute)))
	}
	repo := NewAssetRepository(exec)

	page, err := repo.List(context.Background(), domain.ListFilter{Limit: 2}, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.Equal(t, 3, exec.lastArgs[3], "one extra row is fetched to detect the next page")

	ts, id, err := decodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, ids[1], id)
	assert.True(t, ts.Equal(base.Add(-time.Minute)))

	exec.rows = exec.rows[2:]
	page, err = repo.List(context.Background(), domain.ListFilter{Limit: 2}, page.NextCursor)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)
	require.NotNil(t, exec.lastArgs[4])
}

func TestAssetListRejectsMalformedCursor(t *testing.T) {
	_, err := NewAssetRepository(&stubExecutor{}).List(context.Background(), domain.ListFilter{}, "%%%")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAssetListQueryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewAssetRepository(&stubExecutor{queryErr: boom}).List(context.Background(), domain.ListFilter{}, "")
	assert.ErrorIs(t, err, boom)
}

func TestAssetDelete(t *testing.T) {
	exec := &stubExecutor{execTag: pgconn.NewCommandTag("UPDATE 1")}
	require.NoError(t, NewAssetRepository(exec).Delete(context.Background(), "id-1"))

	exec.execTag = pgconn.NewCommandTag("UPDATE 0")
	err := NewAssetRepository(exec).Delete(context.Background(), "id-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
