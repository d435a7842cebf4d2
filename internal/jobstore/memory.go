package jobstore

import (
	"context"
	"sync"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

// MemoryStore keeps records in process memory, one slot per session. It is
// used in tests and when durability is not wanted.
type MemoryStore struct {
	mu      sync.Mutex
	session string
	records map[string]domain.PersistedJobRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.PersistedJobRecord)}
}

func (s *MemoryStore) Initialize(_ context.Context, sessionID string) error {
	clean, err := sanitizeSession(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.session = clean
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*domain.PersistedJobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == "" {
		return nil, errNotInitialized
	}
	rec, ok := s.records[s.session]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec domain.PersistedJobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == "" {
		return errNotInitialized
	}
	s.records[s.session] = rec
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == "" {
		return errNotInitialized
	}
	delete(s.records, s.session)
	return nil
}

var _ domain.JobStore = (*MemoryStore)(nil)
