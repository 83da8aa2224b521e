package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// CacheStore defines the interface for persisting session state. Backends
// are pluggable: the in-memory store is the default, a distributed KV
// store with TTL is the production option. Correctness never depends on a
// backend being healthy; the session cache degrades transparently.
type CacheStore interface {
	// Store persists the state for a session ID. Idempotent upsert.
	Store(ctx context.Context, sessionID string, state *domain.WorkflowState) error

	// Retrieve loads the state for a session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Retrieve(ctx context.Context, sessionID string) (*domain.WorkflowState, error)

	// Delete removes the state for a session ID.
	Delete(ctx context.Context, sessionID string) error

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// Lister is optionally implemented by stores that can enumerate sessions.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}
