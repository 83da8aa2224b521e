// Package parley is a phase-gated orchestration engine for multi-agent
// conversational workflows. A workflow declares nodes, routing edges, and
// the data each phase must collect; the engine drives sessions through
// the phase lifecycle, validating every node execution, containing node
// failures, and bounding routing loops.
package parley

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/metrics"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/aretw0/parley/pkg/stateview"
)

// Engine is the embeddable entry point. It satisfies ports.Engine.
type Engine struct {
	orch     *runtime.Orchestrator
	sessions *session.Manager
	hook     ports.ComplianceHook
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type config struct {
	logger      *slog.Logger
	store       ports.CacheStore
	compliance  ports.ComplianceHook
	authz       ports.AuthorizationMatrix
	hooks       domain.LifecycleHooks
	maxVisits   int
	visitWindow int
	budget      int
	maxRetries  int
	clock       func() time.Time
}

// Option configures the engine.
type Option func(*config)

// WithLogger sets the structured logger. The default discards logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithStore sets the distributed session backend. Without one, sessions
// live in process memory only.
func WithStore(store ports.CacheStore) Option {
	return func(c *config) { c.store = store }
}

// WithComplianceHook sets the validator applied to external state
// updates. Rejected updates never reach the stored state.
func WithComplianceHook(hook ports.ComplianceHook) Option {
	return func(c *config) { c.compliance = hook }
}

// WithAuthorization sets the write-authorization matrix checked whenever
// a node collects a required-data field.
func WithAuthorization(authz ports.AuthorizationMatrix) Option {
	return func(c *config) { c.authz = authz }
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) { c.hooks = hooks }
}

// WithMaxVisits overrides the circuit breaker bound on consecutive node
// visits without phase progression.
func WithMaxVisits(n int) Option {
	return func(c *config) { c.maxVisits = n }
}

// WithVisitWindow overrides the breaker's rolling window of steps.
func WithVisitWindow(n int) Option {
	return func(c *config) { c.visitWindow = n }
}

// WithRecursionBudget overrides the total orchestration steps one turn
// may consume.
func WithRecursionBudget(n int) Option {
	return func(c *config) { c.budget = n }
}

// WithMaxRetries overrides how many times a retryable node failure is
// retried before it escalates.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *config) { c.clock = clock }
}

// New builds an engine from a workflow declaration.
func New(workflow *Workflow, opts ...Option) (*Engine, error) {
	cfg := &config{
		logger:     logging.NewNop(),
		compliance: ports.AllowAll(),
		maxRetries: -1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	wfc, err := workflow.build()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	cache := session.NewCache(cfg.store,
		session.WithLogger(cfg.logger),
		session.WithDegradeHook(m.CacheDegradations.Inc),
	)
	sessions := session.NewManager(cache, session.WithManagerLogger(cfg.logger))

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(cfg.logger),
		runtime.WithSessions(sessions),
		runtime.WithLifecycleHooks(cfg.hooks),
		runtime.WithMetrics(m),
	}
	if cfg.authz != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithAuthorization(cfg.authz))
	}
	if cfg.maxVisits > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithMaxVisits(cfg.maxVisits))
	}
	if cfg.visitWindow > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithVisitWindow(cfg.visitWindow))
	}
	if cfg.budget > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithRecursionBudget(cfg.budget))
	}
	if cfg.maxRetries >= 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithMaxRetries(cfg.maxRetries))
	}
	if cfg.clock != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithClock(cfg.clock))
	}

	orch, err := runtime.NewOrchestrator(wfc, runtimeOpts...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		orch:     orch,
		sessions: sessions,
		hook:     cfg.compliance,
		metrics:  m,
		logger:   cfg.logger,
	}, nil
}

// Turn processes one user message for a session, creating the session on
// first contact. Turns on the same session serialize.
func (e *Engine) Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	return e.orch.Turn(ctx, req)
}

// Inspect returns the declared node specs.
func (e *Engine) Inspect() []domain.NodeSpec {
	return e.orch.Inspect()
}

// SessionState returns an ownership-checked read view of a session.
func (e *Engine) SessionState(ctx context.Context, sessionID, userID string) (stateview.View, error) {
	var view stateview.View
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state, err := e.sessions.Cache().Retrieve(ctx, sessionID)
		if err != nil {
			return err
		}
		if state.UserID != userID {
			return &domain.OwnershipError{SessionID: sessionID, Owner: state.UserID, Caller: userID}
		}
		view = stateview.Of(state)
		return nil
	})
	return view, err
}

// UpdateSession applies an external state update through the compliance
// hook. The stored state changes only if every field is updatable and the
// hook accepts the result.
func (e *Engine) UpdateSession(ctx context.Context, sessionID, userID, actor string, changes map[string]any) (*domain.WorkflowState, error) {
	var updated *domain.WorkflowState
	err := e.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		state, err := e.sessions.Cache().Retrieve(ctx, sessionID)
		if err != nil {
			return err
		}
		if state.UserID != userID {
			return &domain.OwnershipError{SessionID: sessionID, Owner: state.UserID, Caller: userID}
		}
		next, err := stateview.Of(state).Update(e.hook, actor, changes)
		if err != nil {
			return err
		}
		if storeErr := e.sessions.Cache().Store(ctx, sessionID, next); storeErr != nil {
			return storeErr
		}
		updated = next
		return nil
	})
	return updated, err
}

// DeleteSession removes a session from every storage layer.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Sessions exposes the session manager, for callers embedding the engine
// behind their own transport.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// MetricsHandler exposes the engine's prometheus registry for scraping.
func (e *Engine) MetricsHandler() http.Handler {
	return e.metrics.Handler()
}

var _ ports.Engine = (*Engine)(nil)
