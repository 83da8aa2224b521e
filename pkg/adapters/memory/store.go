package memory

import (
	"context"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Store implements ports.CacheStore in memory. It is the default backend
// and the degradation target when a distributed backend fails.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.WorkflowState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.WorkflowState),
	}
}

// Store persists a deep copy, so later mutations by the caller cannot
// reach the stored snapshot.
func (s *Store) Store(ctx context.Context, sessionID string, state *domain.WorkflowState) error {
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = copied
	return nil
}

// Retrieve returns a copy of the stored state.
func (s *Store) Retrieve(ctx context.Context, sessionID string) (*domain.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// HealthCheck always succeeds; memory is never unavailable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

// List returns the known session IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	return sessions, nil
}
