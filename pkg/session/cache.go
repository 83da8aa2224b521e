package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Cache wraps an optional distributed backend with an in-memory fallback.
// A backend failure degrades the affected session to memory for the rest
// of its life; the event is logged once per session and never surfaces as
// an error to the caller. Correctness is independent of the backend: the
// fallback receives every write.
type Cache struct {
	primary  ports.CacheStore // nil means memory only
	fallback *memory.Store
	logger   *slog.Logger

	mu       sync.Mutex
	degraded map[string]bool

	onDegrade func() // metrics hook
}

// CacheOption configures the Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger for degraded-mode events.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithDegradeHook registers a callback fired once per degraded session.
func WithDegradeHook(fn func()) CacheOption {
	return func(c *Cache) {
		c.onDegrade = fn
	}
}

// NewCache creates a session cache. primary may be nil for memory-only
// operation (the development default).
func NewCache(primary ports.CacheStore, opts ...CacheOption) *Cache {
	c := &Cache{
		primary:  primary,
		fallback: memory.NewStore(),
		logger:   logging.NewNop(),
		degraded: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store persists the state: always to the fallback, best-effort to the
// backend. Backend failures degrade the session instead of erroring.
func (c *Cache) Store(ctx context.Context, sessionID string, state *domain.WorkflowState) error {
	if err := c.fallback.Store(ctx, sessionID, state); err != nil {
		return err
	}
	if c.primary == nil || c.isDegraded(sessionID) {
		return nil
	}
	if err := c.primary.Store(ctx, sessionID, state); err != nil {
		c.degrade(sessionID, err)
	}
	return nil
}

// Retrieve loads the state, preferring the backend while healthy.
func (c *Cache) Retrieve(ctx context.Context, sessionID string) (*domain.WorkflowState, error) {
	if c.primary != nil && !c.isDegraded(sessionID) {
		state, err := c.primary.Retrieve(ctx, sessionID)
		if err == nil {
			return state, nil
		}
		if err == domain.ErrSessionNotFound {
			// Not a backend failure; the session may live in memory only.
			return c.fallback.Retrieve(ctx, sessionID)
		}
		c.degrade(sessionID, err)
	}
	return c.fallback.Retrieve(ctx, sessionID)
}

// Delete removes the session from both layers.
func (c *Cache) Delete(ctx context.Context, sessionID string) error {
	_ = c.fallback.Delete(ctx, sessionID)
	if c.primary != nil && !c.isDegraded(sessionID) {
		if err := c.primary.Delete(ctx, sessionID); err != nil {
			c.degrade(sessionID, err)
		}
	}
	c.mu.Lock()
	delete(c.degraded, sessionID)
	c.mu.Unlock()
	return nil
}

// HealthCheck reports backend health; memory-only caches are always
// healthy.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if c.primary == nil {
		return nil
	}
	return c.primary.HealthCheck(ctx)
}

// Degraded reports whether the session has fallen back to memory.
func (c *Cache) Degraded(sessionID string) bool {
	return c.isDegraded(sessionID)
}

func (c *Cache) isDegraded(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded[sessionID]
}

func (c *Cache) degrade(sessionID string, cause error) {
	c.mu.Lock()
	already := c.degraded[sessionID]
	c.degraded[sessionID] = true
	c.mu.Unlock()

	if already {
		return
	}
	c.logger.Warn("session cache degraded to in-memory mode",
		"session_id", sessionID,
		"err", cause,
	)
	if c.onDegrade != nil {
		c.onDegrade()
	}
}
