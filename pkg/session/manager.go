package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes access per session: a session's turns execute one at
// a time while different sessions proceed concurrently. Reference
// counting garbage-collects locks for idle sessions. Cross-instance
// hand-off is not handled here; sticky routing upstream owns that.
type Manager struct {
	cache *Cache

	mu    sync.Mutex
	locks map[string]*lockEntry

	logger *slog.Logger
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithManagerLogger configures a logger for the Manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager over the given cache.
func NewManager(cache *Cache, opts ...ManagerOption) *Manager {
	m := &Manager{
		cache:  cache,
		locks:  make(map[string]*lockEntry),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the session's lock.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	return fn(ctx)
}

// LoadOrStart loads a session, initializing a fresh one at first contact.
// The ownership check against userID happens here so a stolen session ID
// fails before any node runs.
func (m *Manager) LoadOrStart(ctx context.Context, sessionID, userID string) (*domain.WorkflowState, error) {
	var state *domain.WorkflowState
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, err = m.cache.Retrieve(ctx, sessionID)
		if err == nil {
			if state.UserID != userID {
				return &domain.OwnershipError{
					SessionID: sessionID,
					Owner:     state.UserID,
					Caller:    userID,
				}
			}
			return nil
		}
		if err != domain.ErrSessionNotFound {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		state = domain.NewWorkflowState(sessionID, userID)

		// Persist immediately to reserve the ID.
		if err := m.cache.Store(ctx, sessionID, state); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
	return state, err
}

// Save persists the session state.
func (m *Manager) Save(ctx context.Context, sessionID string, state *domain.WorkflowState) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.cache.Store(ctx, sessionID, state)
	})
}

// Delete removes the session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.cache.Delete(ctx, sessionID)
	})
}

// Cache returns the underlying session cache.
func (m *Manager) Cache() *Cache {
	return m.cache
}
