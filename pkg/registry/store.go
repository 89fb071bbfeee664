package registry

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrVersionConflict is returned by a conditional Put when another writer
	// got there first. Callers must re-read and decide, never blind-retry.
	ErrVersionConflict = errors.New("registry: record version conflict")
)

// Store is the durable key-value layer under the registry service. Put is
// conditional: expectVersion must match the stored record's version (0 for a
// record that does not exist yet), otherwise ErrVersionConflict. This is the
// compare-and-swap that closes the concurrent-activation race.
type Store interface {
	Get(ctx context.Context, workspaceID string) (*Record, error)
	Put(ctx context.Context, record *Record, expectVersion int64) error
}

// MemoryStore keeps records in a mutex-guarded map. Used by tests and
// single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, workspaceID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[workspaceID]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) Put(ctx context.Context, record *Record, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.records[record.WorkspaceID]; ok {
		current = existing.Version
	}
	if current != expectVersion {
		return ErrVersionConflict
	}

	stored := *record
	stored.Version = current + 1
	stored.UpdatedAt = time.Now().UTC()
	s.records[record.WorkspaceID] = stored
	record.Version = stored.Version
	record.UpdatedAt = stored.UpdatedAt
	return nil
}
