package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return &Executor{
		validator: NewPhaseValidator(testRequirements(), nil, nil),
		logger:    logging.NewNop(),
		clock:     time.Now,
	}
}

func collectorNode() *domain.Node {
	return &domain.Node{
		NodeSpec: collectorSpec(),
		Run: func(ctx context.Context, state *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			state.RequiredData["objective"] = true
			state.ContextData["objective"] = input
			state.AppendMessage("assistant", "Objective noted.", time.Now())
			return state, nil
		},
	}
}

func TestExecutorSuccess(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")

	out, err := e.Run(context.Background(), collectorNode(), state, "ship the beta")
	require.NoError(t, err)

	assert.Equal(t, "collect_objective", out.CurrentNode)
	assert.Equal(t, domain.PhaseDiscovery, out.Phase)
	assert.Equal(t, "ship the beta", out.ContextData["objective"])

	events := make([]string, 0, len(out.AuditTrail))
	for _, entry := range out.AuditTrail {
		events = append(events, entry.Event)
	}
	assert.Contains(t, events, domain.AuditNodeExecuted)
	assert.Contains(t, events, domain.AuditFieldCollected)
	assert.Contains(t, events, domain.AuditCheckpointTaken)
	assert.Contains(t, events, domain.AuditPhaseAdvanced)

	cp, ok := out.LastCheckpoint()
	require.True(t, ok)
	assert.Equal(t, domain.PhaseInitialization, cp.Phase)
	assert.True(t, cp.Collected["objective"])

	// The input snapshot stays untouched.
	assert.Equal(t, domain.PhaseInitialization, state.Phase)
	assert.Empty(t, state.RequiredData)
}

func TestExecutorEntryMismatch(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")
	state.Phase = domain.PhaseReview

	out, err := e.Run(context.Background(), collectorNode(), state, "hello")
	var mismatch *domain.PhaseMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Same(t, state, out, "mismatch leaves the state untouched")
	assert.Empty(t, out.RecoveryAttempts)
}

func TestExecutorContainsNodeError(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")

	boom := &domain.Node{
		NodeSpec: domain.NodeSpec{
			Name:           "flaky",
			ExpectedPhases: []domain.Phase{domain.PhaseInitialization},
		},
		Run: func(ctx context.Context, s *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			return nil, errors.New("upstream unavailable")
		},
	}

	out, err := e.Run(context.Background(), boom, state, "hi")
	var nodeErr *domain.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.True(t, nodeErr.Retryable())

	assert.Equal(t, 1, out.RecoveryAttempts["flaky"])
	rec, ok := out.ErrorRecovery["flaky"]
	require.True(t, ok)
	assert.Equal(t, "node_error", rec.Kind)
	assert.Equal(t, domain.PhaseInitialization, out.Phase, "failure leaves phase untouched")

	last := out.AuditTrail[len(out.AuditTrail)-1]
	assert.Equal(t, domain.AuditNodeFailed, last.Event)
}

func TestExecutorContainsPanic(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")

	panicky := &domain.Node{
		NodeSpec: domain.NodeSpec{
			Name:           "panicky",
			ExpectedPhases: []domain.Phase{domain.PhaseInitialization},
		},
		Run: func(ctx context.Context, s *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			panic("nil map write")
		},
	}

	out, err := e.Run(context.Background(), panicky, state, "hi")
	var nodeErr *domain.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, 1, out.RecoveryAttempts["panicky"])
}

func TestExecutorTimeout(t *testing.T) {
	e := newTestExecutor(t)
	e.timeoutFor = func(domain.NodeSpec) time.Duration { return 20 * time.Millisecond }
	state := domain.NewWorkflowState("s1", "u1")

	stuck := &domain.Node{
		NodeSpec: domain.NodeSpec{
			Name:           "stuck",
			ExpectedPhases: []domain.Phase{domain.PhaseInitialization},
		},
		Run: func(ctx context.Context, s *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	out, err := e.Run(context.Background(), stuck, state, "hi")
	var timeout *domain.NodeTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.True(t, timeout.Retryable())
	assert.Equal(t, "stuck", timeout.Node)
	assert.Equal(t, 1, out.RecoveryAttempts["stuck"])
}

func TestExecutorCallerCancellation(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")

	ctx, cancel := context.WithCancel(context.Background())
	stuck := &domain.Node{
		NodeSpec: domain.NodeSpec{
			Name:           "stuck",
			ExpectedPhases: []domain.Phase{domain.PhaseInitialization},
		},
		Run: func(ctx context.Context, s *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	out, err := e.Run(ctx, stuck, state, "hi")
	require.ErrorIs(t, err, context.Canceled)
	assert.Same(t, state, out)
	assert.Empty(t, out.RecoveryAttempts, "caller cancellation is not a node fault")
}

func TestExecutorFatalViolationSkipsBookkeeping(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")

	rogue := &domain.Node{
		NodeSpec: domain.NodeSpec{
			Name:           "rogue",
			ExpectedPhases: []domain.Phase{domain.PhaseInitialization},
		},
		Run: func(ctx context.Context, s *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			s.RequiredData["objective"] = true // not in its Writes list
			return s, nil
		},
	}

	out, err := e.Run(context.Background(), rogue, state, "hi")
	var violation *domain.ComplianceViolationError
	require.ErrorAs(t, err, &violation)
	assert.True(t, domain.Fatal(err))
	assert.Same(t, state, out)
	assert.Empty(t, out.RecoveryAttempts)
}

func TestExecutorRejectsCompletionTampering(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")

	tamperer := &domain.Node{
		NodeSpec: domain.NodeSpec{
			Name:           "tamperer",
			ExpectedPhases: []domain.Phase{domain.PhaseInitialization},
		},
		Run: func(ctx context.Context, s *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			s.PhaseCompletion[domain.PhaseReview] = 7.3
			s.PhaseCompletion[domain.PhaseDelivery] = -2.0
			return s, nil
		},
	}

	out, err := e.Run(context.Background(), tamperer, state, "hi")
	var violation *domain.ComplianceViolationError
	require.ErrorAs(t, err, &violation)
	assert.True(t, domain.Fatal(err))
	assert.Same(t, state, out)
	assert.NotContains(t, out.PhaseCompletion, domain.PhaseReview)
	assert.NotContains(t, out.PhaseCompletion, domain.PhaseDelivery)
}

func TestExecutorRejectsCollectedFieldReversal(t *testing.T) {
	e := newTestExecutor(t)
	state := domain.NewWorkflowState("s1", "u1")
	state.Phase = domain.PhaseDiscovery
	state.RequiredData["objective"] = true
	state.PhaseCompletion[domain.PhaseInitialization] = 1.0

	amnesiac := &domain.Node{
		NodeSpec: domain.NodeSpec{
			Name:           "amnesiac",
			ExpectedPhases: []domain.Phase{domain.PhaseDiscovery},
			Writes:         []string{"background"},
		},
		Run: func(ctx context.Context, s *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			s.RequiredData["objective"] = false
			return s, nil
		},
	}

	out, err := e.Run(context.Background(), amnesiac, state, "hi")
	var violation *domain.ComplianceViolationError
	require.ErrorAs(t, err, &violation)
	assert.True(t, domain.Fatal(err))
	assert.Same(t, state, out)
	assert.True(t, out.RequiredData["objective"])
}
