// Package jobstore implements the durable single slot that remembers the
// active generation job across restarts.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

var errNotInitialized = errors.New("jobstore: not initialized")

// FileStore persists the active job record as one JSON file per session
// under a base directory. Writes go through a temp file and rename so a
// crash never leaves a half-written record.
type FileStore struct {
	basePath string

	mu      sync.Mutex
	session string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("jobstore: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("jobstore: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Initialize binds the store to sessionID.
func (s *FileStore) Initialize(_ context.Context, sessionID string) error {
	clean, err := sanitizeSession(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.session = clean
	s.mu.Unlock()
	return nil
}

func (s *FileStore) path() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == "" {
		return "", errNotInitialized
	}
	return filepath.Join(s.basePath, "active-job-"+s.session+".json"), nil
}

// Load reads the record. A missing file means no active job; an unreadable
// record is removed and reported as empty.
func (s *FileStore) Load(ctx context.Context) (*domain.PersistedJobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: read record: %w", err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		_ = os.Remove(p)
		return nil, nil
	}
	return rec, nil
}

// Save replaces the record.
func (s *FileStore) Save(ctx context.Context, rec domain.PersistedJobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstore: encode record: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("jobstore: write record: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("jobstore: commit record: %w", err)
	}
	return nil
}

// Clear removes the record. Clearing an empty slot is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	p, err := s.path()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("jobstore: remove record: %w", err)
	}
	return nil
}

func decodeRecord(raw []byte) (*domain.PersistedJobRecord, error) {
	var rec domain.PersistedJobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.Job.ID == "" || rec.StartedAt <= 0 {
		return nil, errors.New("jobstore: incomplete record")
	}
	return &rec, nil
}

// sanitizeSession keeps session ids usable as file names and key suffixes.
func sanitizeSession(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("jobstore: session id is required")
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String(), nil
}

var _ domain.JobStore = (*FileStore)(nil)
