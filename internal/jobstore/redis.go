package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

const keyPrefix = "genjob:active:"

// RedisStore keeps the active job record in a single Redis key per session.
// The key expires shortly after the generation ceiling, so a record nobody
// recovers cleans itself up.
type RedisStore struct {
	client     redis.Cmdable
	expiration time.Duration
	timeout    time.Duration

	mu      sync.Mutex
	session string
}

// NewRedisStore creates a store. The caller owns the client lifecycle.
func NewRedisStore(client redis.Cmdable, ceiling time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		expiration: recordExpiration(ceiling),
		timeout:    time.Second,
	}
}

func recordExpiration(ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		return 0
	}
	return ceiling + time.Minute
}

func sessionKey(session string) string { return keyPrefix + session }

// Initialize binds the store to sessionID.
func (s *RedisStore) Initialize(_ context.Context, sessionID string) error {
	clean, err := sanitizeSession(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.session = clean
	s.mu.Unlock()
	return nil
}

func (s *RedisStore) key() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == "" {
		return "", errNotInitialized
	}
	return sessionKey(s.session), nil
}

// Load reads the record; redis.Nil means no active job.
func (s *RedisStore) Load(ctx context.Context) (*domain.PersistedJobRecord, error) {
	key, err := s.key()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: redis get: %w", err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		_ = s.client.Del(ctx, key).Err()
		return nil, nil
	}
	return rec, nil
}

// Save replaces the record and refreshes its expiration.
func (s *RedisStore) Save(ctx context.Context, rec domain.PersistedJobRecord) error {
	key, err := s.key()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstore: encode record: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, key, raw, s.expiration).Err(); err != nil {
		return fmt.Errorf("jobstore: redis set: %w", err)
	}
	return nil
}

// Clear deletes the record.
func (s *RedisStore) Clear(ctx context.Context) error {
	key, err := s.key()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("jobstore: redis del: %w", err)
	}
	return nil
}

var _ domain.JobStore = (*RedisStore)(nil)
