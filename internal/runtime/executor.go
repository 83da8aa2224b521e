package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/aretw0/parley/internal/metrics"
	"github.com/aretw0/parley/pkg/domain"
)

// Executor runs a single node under the validator's entry and exit gates.
// Node failures never corrupt the session: the node works on a clone, and
// on any failure the caller keeps the pre-execution state plus recovery
// bookkeeping.
type Executor struct {
	validator *PhaseValidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	hooks     domain.LifecycleHooks
	clock     func() time.Time

	// timeoutFor resolves the execution deadline for a node. Nil means
	// NodeSpec.EffectiveTimeout.
	timeoutFor func(domain.NodeSpec) time.Duration
}

func (e *Executor) timeout(spec domain.NodeSpec) time.Duration {
	if e.timeoutFor != nil {
		return e.timeoutFor(spec)
	}
	return spec.EffectiveTimeout()
}

type nodeResult struct {
	state *domain.WorkflowState
	err   error
}

// Run executes the node with the session input. On success the returned
// state carries the node's output, recomputed phase bookkeeping, and new
// audit entries. On failure it carries recovery bookkeeping for the node
// unless the error is fatal, in which case the input state is returned
// untouched.
func (e *Executor) Run(ctx context.Context, node *domain.Node, state *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
	if err := e.validator.CheckEntry(node.NodeSpec, state); err != nil {
		return state, err
	}

	e.hooks.NodeStarted(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: e.clock(), SessionID: state.SessionID},
		Node:      node.Name,
		Phase:     state.Phase,
	})
	if e.metrics != nil {
		e.metrics.NodeVisits.WithLabelValues(node.Name).Inc()
	}

	timeout := e.timeout(node.NodeSpec)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := e.clock()
	ch := make(chan nodeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- nodeResult{err: &domain.NodeError{
					Node: node.Name,
					Err:  fmt.Errorf("panic: %v", r),
				}}
			}
		}()
		out, err := node.Run(cctx, state.Clone(), input)
		ch <- nodeResult{state: out, err: err}
	}()

	var res nodeResult
	select {
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res = nodeResult{err: &domain.NodeTimeoutError{Node: node.Name, Timeout: timeout}}
		} else {
			// Caller cancellation is not a node fault.
			return state, ctx.Err()
		}
	case res = <-ch:
	}

	if e.metrics != nil {
		e.metrics.NodeDuration.WithLabelValues(node.Name).Observe(e.clock().Sub(started).Seconds())
	}

	if res.err != nil {
		return e.contain(state, node.Name, e.classify(node.Name, res.err))
	}

	exit, err := e.validator.CheckExit(node.NodeSpec, state, res.state)
	if err != nil {
		return e.contain(state, node.Name, err)
	}

	out := exit.State
	out.CurrentNode = node.Name
	now := e.clock()

	changed := domain.DiffFields(state, out)
	out.AppendAudit(node.Name, domain.AuditNodeExecuted, changed, now)
	for _, field := range exit.Collected {
		out.AppendAudit(node.Name, domain.AuditFieldCollected, []string{field}, now)
	}
	if exit.Advanced {
		cp := domain.Checkpoint{
			Name:          string(exit.From) + "_complete",
			Phase:         exit.From,
			Completion:    maps.Clone(out.PhaseCompletion),
			Collected:     maps.Clone(out.RequiredData),
			CurrentNode:   node.Name,
			TakenAt:       now,
			MessageOffset: len(out.MessageHistory),
		}
		out.Checkpoints = append(out.Checkpoints, cp)
		out.AppendAudit(domain.ActorSystem, domain.AuditCheckpointTaken, []string{cp.Name}, now)
		out.AppendAudit(domain.ActorSystem, domain.AuditPhaseAdvanced, []string{string(exit.From), string(out.Phase)}, now)
		e.hooks.PhaseChanged(ctx, &domain.PhaseEvent{
			EventBase: domain.EventBase{Timestamp: now, SessionID: out.SessionID},
			From:      exit.From,
			To:        out.Phase,
		})
		e.logger.Info("phase advanced",
			slog.String("session_id", out.SessionID),
			slog.String("from", string(exit.From)),
			slog.String("to", string(out.Phase)),
		)
	}

	e.hooks.NodeFinished(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: now, SessionID: out.SessionID},
		Node:      node.Name,
		Phase:     out.Phase,
		Duration:  now.Sub(started),
	})
	return out, nil
}

// classify wraps raw node errors so every failure carries a kind and a
// retryability verdict. Already-classified errors pass through.
func (e *Executor) classify(node string, err error) error {
	var classified domain.Classified
	if errors.As(err, &classified) {
		return err
	}
	return &domain.NodeError{Node: node, Err: err}
}

// contain records the failure on a clone of the pre-execution state. Fatal
// errors skip the bookkeeping; they end the session's turn as-is.
func (e *Executor) contain(state *domain.WorkflowState, node string, err error) (*domain.WorkflowState, error) {
	structured := domain.Structure(err)
	if e.metrics != nil {
		e.metrics.NodeFailures.WithLabelValues(node, structured.Kind).Inc()
	}
	e.logger.Warn("node failed",
		slog.String("session_id", state.SessionID),
		slog.String("node", node),
		slog.String("kind", structured.Kind),
		slog.Bool("retryable", structured.Retryable),
	)
	if domain.Fatal(err) {
		return state, err
	}

	now := e.clock()
	out := state.Clone()
	out.RecoveryAttempts[node]++
	out.ErrorRecovery[node] = domain.ErrorRecord{
		Node:       node,
		Kind:       structured.Kind,
		Message:    structured.Message,
		OccurredAt: now,
	}
	out.AppendAudit(node, domain.AuditNodeFailed, []string{structured.Kind}, now)
	return out, err
}
