package jobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

func sampleRecord() domain.PersistedJobRecord {
	return domain.PersistedJobRecord{
		Job:       domain.NewJob("job-1", domain.FormatImageHigh),
		StartedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

func exerciseStore(t *testing.T, s domain.JobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.Error(t, err, "load before Initialize")

	require.NoError(t, s.Initialize(ctx, "session-1"))
	rec, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	want := sampleRecord()
	require.NoError(t, s.Save(ctx, want))
	rec, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, want, *rec)

	require.NoError(t, s.Initialize(ctx, "session-2"))
	rec, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "sessions do not share the slot")

	require.NoError(t, s.Initialize(ctx, "session-1"))
	require.NoError(t, s.Clear(ctx))
	rec, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, s.Clear(ctx), "clearing an empty slot")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreDropsCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx, "s"))

	p := filepath.Join(dir, "active-job-s.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))

	rec, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
	_, statErr := os.Stat(p)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestSanitizeSession(t *testing.T) {
	got, err := sanitizeSession(" ../user@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "___user_example_com", got)

	_, err = sanitizeSession("  ")
	assert.Error(t, err)
}

func TestRedisRecordExpiration(t *testing.T) {
	assert.Equal(t, 6*time.Minute, recordExpiration(5*time.Minute))
	assert.Zero(t, recordExpiration(0))
	assert.Equal(t, "genjob:active:abc", sessionKey("abc"))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	exerciseStore(t, NewRedisStore(client, 5*time.Minute))
}
