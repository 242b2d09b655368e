// Package memory implements the state and memory stores in process memory.
// It exists for single-process and dev use; a multi-worker deployment must
// use the Redis adapter, since per-process session state cannot be shared
// across workers.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// Store implements ports.StateStore and ports.MemoryStore.
// Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	states map[string][]byte
	vers   map[string]int64
	mems   map[string][]byte
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		states: make(map[string][]byte),
		vers:   make(map[string]int64),
		mems:   make(map[string][]byte),
	}
}

// Load retrieves the state. States are kept serialized so every read
// returns an isolated, bit-identical copy.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.WorkflowState, error) {
	s.mu.Lock()
	raw, ok := s.states[sessionID]
	s.mu.Unlock()

	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var state domain.WorkflowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, domain.ErrStateCorrupt
	}
	return &state, nil
}

// Save performs the compare-and-swap write. expectedVersion 0 creates the
// session and fails if it already exists.
func (s *Store) Save(ctx context.Context, sessionID string, state *domain.WorkflowState, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.vers[sessionID]
	if current != expectedVersion {
		return domain.ErrVersionConflict
	}

	next := state.Clone()
	next.Version = expectedVersion + 1
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}

	s.states[sessionID] = raw
	s.vers[sessionID] = next.Version
	state.Version = next.Version
	return nil
}

// Delete removes the state and version counter.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	delete(s.vers, sessionID)
	delete(s.mems, sessionID)
	return nil
}

// List returns the known session IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadMemory returns the conversation memory record, empty for new sessions.
func (s *Store) LoadMemory(ctx context.Context, sessionID string) (*domain.MemoryRecord, error) {
	s.mu.Lock()
	raw, ok := s.mems[sessionID]
	s.mu.Unlock()

	if !ok {
		return &domain.MemoryRecord{}, nil
	}
	var rec domain.MemoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveMemory overwrites the conversation memory record.
func (s *Store) SaveMemory(ctx context.Context, sessionID string, rec *domain.MemoryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.mems[sessionID] = raw
	s.mu.Unlock()
	return nil
}

// DeleteMemory removes the conversation memory record.
func (s *Store) DeleteMemory(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.mems, sessionID)
	s.mu.Unlock()
	return nil
}
