package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/metrics"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
)

const (
	// DefaultRecursionBudget bounds orchestration steps within one turn.
	DefaultRecursionBudget = 100
	// DefaultMaxRetries bounds re-execution of a node after retryable
	// failures within one turn.
	DefaultMaxRetries = 2
)

// Edge routes from one node to another when its predicate matches. A nil
// predicate always matches. Edges are evaluated in declaration order and
// the first match wins.
type Edge struct {
	To   string
	When func(*domain.WorkflowState) bool
}

// Config declares a workflow: its nodes, the predicate edges between
// them, the node statically mapped to each phase, the per-phase required
// data, and the adjacency-exception table.
type Config struct {
	Nodes        []*domain.Node
	Edges        map[string][]Edge
	PhaseNodes   map[domain.Phase]string
	Requirements domain.Requirements
	Exceptions   []PhaseException
}

// Orchestrator drives conversations through the phase-gated workflow. One
// Turn consumes one user message and runs orchestration steps until the
// session needs more input, reaches COMPLETION, or hits a safety bound.
type Orchestrator struct {
	nodes      map[string]*domain.Node
	edges      map[string][]Edge
	phaseNodes map[domain.Phase]string

	validator *PhaseValidator
	executor  *Executor
	sessions  *session.Manager
	logger    *slog.Logger
	metrics   *metrics.Metrics
	hooks     domain.LifecycleHooks

	maxVisits  int
	window     int
	budget     int
	maxRetries int
	clock      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSessions sets the session manager backing the orchestrator.
func WithSessions(manager *session.Manager) Option {
	return func(o *Orchestrator) { o.sessions = manager }
}

// WithAuthorization sets the write-authorization matrix consulted on
// every node exit.
func WithAuthorization(authz ports.AuthorizationMatrix) Option {
	return func(o *Orchestrator) {
		if authz != nil {
			o.validator.authz = authz
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// WithMetrics wires prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithMaxVisits overrides the circuit breaker visit bound.
func WithMaxVisits(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxVisits = n
		}
	}
}

// WithVisitWindow overrides the breaker's rolling window size.
func WithVisitWindow(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.window = n
		}
	}
}

// WithRecursionBudget overrides the per-turn step bound.
func WithRecursionBudget(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.budget = n
		}
	}
}

// WithMaxRetries overrides the per-node retry bound.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithClock overrides the time source. Tests use this for deterministic
// timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewOrchestrator validates the workflow declaration and assembles the
// orchestrator. Unknown node references in edges, phase mappings, or the
// exception table are construction errors, not runtime surprises.
func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	if len(cfg.Nodes) == 0 {
		return nil, errors.New("workflow declares no nodes")
	}

	nodes := make(map[string]*domain.Node, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if n == nil || n.Name == "" {
			return nil, errors.New("workflow declares a node without a name")
		}
		if n.Run == nil {
			return nil, fmt.Errorf("node %q has no run function", n.Name)
		}
		if _, dup := nodes[n.Name]; dup {
			return nil, fmt.Errorf("node %q declared twice", n.Name)
		}
		nodes[n.Name] = n
	}

	for from, out := range cfg.Edges {
		if from != "" {
			if _, ok := nodes[from]; !ok {
				return nil, fmt.Errorf("edges declared from unknown node %q", from)
			}
		}
		for _, e := range out {
			if _, ok := nodes[e.To]; !ok {
				return nil, fmt.Errorf("edge from %q targets unknown node %q", from, e.To)
			}
		}
	}

	for phase, name := range cfg.PhaseNodes {
		if !phase.Valid() {
			return nil, fmt.Errorf("phase mapping for unknown phase %q", phase)
		}
		if _, ok := nodes[name]; !ok {
			return nil, fmt.Errorf("phase %s mapped to unknown node %q", phase, name)
		}
	}

	for _, exc := range cfg.Exceptions {
		if !exc.Phase.Valid() {
			return nil, fmt.Errorf("adjacency exception for unknown phase %q", exc.Phase)
		}
		if _, ok := nodes[exc.Node]; !ok {
			return nil, fmt.Errorf("adjacency exception for unknown node %q", exc.Node)
		}
	}

	o := &Orchestrator{
		nodes:      nodes,
		edges:      cfg.Edges,
		phaseNodes: cfg.PhaseNodes,
		validator:  NewPhaseValidator(cfg.Requirements, nil, cfg.Exceptions),
		logger:     logging.NewNop(),
		maxVisits:  DefaultMaxVisits,
		window:     DefaultVisitWindow,
		budget:     DefaultRecursionBudget,
		maxRetries: DefaultMaxRetries,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sessions == nil {
		o.sessions = session.NewManager(session.NewCache(nil))
	}
	o.executor = &Executor{
		validator: o.validator,
		logger:    o.logger,
		metrics:   o.metrics,
		hooks:     o.hooks,
		clock:     o.clock,
	}
	return o, nil
}

// Inspect returns the declared node specs, for diagnostics surfaces.
func (o *Orchestrator) Inspect() []domain.NodeSpec {
	specs := make([]domain.NodeSpec, 0, len(o.nodes))
	for _, n := range o.nodes {
		specs = append(specs, n.NodeSpec)
	}
	return specs
}

// Sessions returns the session manager.
func (o *Orchestrator) Sessions() *session.Manager {
	return o.sessions
}

// Turn processes one user message. The session lock is held for the whole
// turn; concurrent turns on the same session serialize. The returned
// result always carries the last valid persisted state, including when a
// fatal error ends the turn early.
func (o *Orchestrator) Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	var result *domain.TurnResult
	var turnErr error
	err := o.sessions.WithLock(ctx, req.SessionID, func(ctx context.Context) error {
		result, turnErr = o.turn(ctx, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, turnErr
}

func (o *Orchestrator) turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	cache := o.sessions.Cache()
	now := o.clock()

	state, err := cache.Retrieve(ctx, req.SessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		state = domain.NewWorkflowState(req.SessionID, req.UserID)
		state.AppendAudit(domain.ActorSystem, domain.AuditSessionStarted, nil, now)
	}
	if err := o.validator.CheckOwnership(state, req.UserID); err != nil {
		// The caller does not own this session; no state crosses back.
		return &domain.TurnResult{Err: domain.Structure(err)}, err
	}

	work := state.Clone()
	work.Messages = nil
	work.AppendMessage("user", req.Message, now)

	var runErr error
	if cmd, ok := domain.ParseGlobalCommand(req.Message); ok {
		work = o.applyCommand(work, cmd)
	} else {
		work, runErr = o.run(ctx, work, req.Message)
	}

	if err := cache.Store(ctx, req.SessionID, work); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	result := &domain.TurnResult{
		Phase:      work.Phase,
		CanAdvance: work.CanAdvance,
		Messages:   work.Messages,
		State:      work,
	}
	if runErr != nil {
		result.Err = domain.Structure(runErr)
		return result, runErr
	}
	return result, nil
}

// run is the orchestration loop. It returns the last valid state even
// when it returns an error; callers persist whatever comes back.
func (o *Orchestrator) run(ctx context.Context, work *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
	breaker := newCircuitBreaker(o.maxVisits, o.window)
	steps := 0
	defer func() {
		if o.metrics != nil {
			o.metrics.TurnSteps.Observe(float64(steps))
		}
	}()

	for {
		if work.Phase.Terminal() && work.CurrentNode == o.phaseNodes[work.Phase] {
			return work, nil
		}
		if steps >= o.budget {
			o.logger.Error("recursion budget exhausted",
				slog.String("session_id", work.SessionID),
				slog.Int("budget", o.budget),
			)
			return work, &domain.RecursionBudgetError{Budget: o.budget}
		}
		steps++

		candidate := o.selectNode(work)
		if candidate == "" {
			return work, nil
		}

		if breaker.Tripped(candidate, work.Phase) {
			visits := breaker.ConsecutiveVisits(candidate, work.Phase)
			if o.metrics != nil {
				o.metrics.BreakerTrips.Inc()
			}
			forced := o.phaseNodes[work.Phase]
			if forced == "" || forced == candidate {
				return work, &domain.LoopDetectedError{Node: candidate, Visits: visits}
			}
			now := o.clock()
			o.logger.Warn("forcing progression",
				slog.String("session_id", work.SessionID),
				slog.String("node", candidate),
				slog.Int("visits", visits),
				slog.String("forced_node", forced),
			)
			o.hooks.BreakerTripped(ctx, &domain.BreakerEvent{
				EventBase: domain.EventBase{Timestamp: now, SessionID: work.SessionID},
				Node:      candidate,
				Visits:    visits,
				Forced:    forced,
			})
			work.AppendAudit(domain.ActorSystem, domain.AuditForcedProgression, []string{candidate, string(work.Phase)}, now)
			candidate = forced
		}

		breaker.Observe(candidate, work.Phase)

		next, err := o.executor.Run(ctx, o.nodes[candidate], work, input)
		if err != nil {
			var mismatch *domain.PhaseMismatchError
			if errors.As(err, &mismatch) {
				// Recoverable: the next step routes by the actual phase.
				continue
			}
			if domain.Fatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return work, err
			}
			work = next
			if work.RecoveryAttempts[candidate] > o.maxRetries {
				return work, err
			}
			continue
		}

		advanced := next.Phase != work.Phase
		work = next
		if advanced {
			// Let the new phase's node take over before yielding.
			continue
		}
		return work, nil
	}
}

// selectNode applies predicate edges from the current node, falling back
// to the node statically mapped to the current phase.
func (o *Orchestrator) selectNode(state *domain.WorkflowState) string {
	for _, edge := range o.edges[state.CurrentNode] {
		if edge.When == nil || edge.When(state) {
			return edge.To
		}
	}
	return o.phaseNodes[state.Phase]
}

func (o *Orchestrator) applyCommand(work *domain.WorkflowState, cmd domain.GlobalCommand) *domain.WorkflowState {
	now := o.clock()
	switch cmd {
	case domain.CommandRestart:
		fresh := domain.NewWorkflowState(work.SessionID, work.UserID)
		fresh.AppendAudit(domain.ActorSystem, domain.AuditSessionStarted, nil, now)
		fresh.AppendAudit(domain.ActorSystem, domain.AuditGlobalCommand, []string{string(cmd)}, now)
		fresh.AppendMessage("assistant", "Session restarted. We are back at the beginning.", now)
		return fresh

	case domain.CommandGoBack:
		cp, ok := work.LastCheckpoint()
		if !ok {
			work.AppendAudit(domain.ActorSystem, domain.AuditGlobalCommand, []string{string(cmd)}, now)
			work.AppendMessage("assistant", "There is no earlier checkpoint to return to.", now)
			return work
		}
		work.Checkpoints = work.Checkpoints[:len(work.Checkpoints)-1]
		work.Phase = cp.Phase
		work.PhaseCompletion = maps.Clone(cp.Completion)
		work.RequiredData = maps.Clone(cp.Collected)
		work.CurrentNode = cp.CurrentNode
		completion := clamp01(o.validator.reqs.Completion(cp.Phase, work.RequiredData))
		work.PhaseCompletion[cp.Phase] = completion
		work.CanAdvance = completion >= 1.0
		work.AppendAudit(domain.ActorSystem, domain.AuditCheckpointRewind, []string{string(cp.Phase), cp.Name}, now)
		work.AppendAudit(domain.ActorSystem, domain.AuditGlobalCommand, []string{string(cmd)}, now)
		work.AppendMessage("assistant", fmt.Sprintf("Rewound to the %s phase.", cp.Phase), now)
		return work

	case domain.CommandHelp:
		var b strings.Builder
		b.WriteString("Available commands: restart, go_back, help, debug.\n")
		fmt.Fprintf(&b, "You are in the %s phase", work.Phase)
		if comp, ok := work.PhaseCompletion[work.Phase]; ok {
			fmt.Fprintf(&b, " (%.0f%% complete)", comp*100)
		}
		b.WriteString(".")
		work.AppendAudit(domain.ActorSystem, domain.AuditGlobalCommand, []string{string(cmd)}, now)
		work.AppendMessage("assistant", b.String(), now)
		return work

	case domain.CommandDebug:
		var b strings.Builder
		fmt.Fprintf(&b, "phase=%s node=%s can_advance=%t\n", work.Phase, work.CurrentNode, work.CanAdvance)
		fmt.Fprintf(&b, "completion=%v\n", work.PhaseCompletion)
		fmt.Fprintf(&b, "collected=%d fields, checkpoints=%d, audit=%d entries\n",
			countCollected(work.RequiredData), len(work.Checkpoints), len(work.AuditTrail))
		if len(work.RecoveryAttempts) > 0 {
			fmt.Fprintf(&b, "recovery_attempts=%v\n", work.RecoveryAttempts)
		}
		if o.sessions.Cache().Degraded(work.SessionID) {
			b.WriteString("cache=degraded (in-memory fallback)\n")
		}
		work.AppendAudit(domain.ActorSystem, domain.AuditGlobalCommand, []string{string(cmd)}, now)
		work.AppendMessage("assistant", strings.TrimRight(b.String(), "\n"), now)
		return work
	}
	return work
}

func countCollected(fields map[string]bool) int {
	n := 0
	for _, done := range fields {
		if done {
			n++
		}
	}
	return n
}
