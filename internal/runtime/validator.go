package runtime

import (
	"fmt"
	"maps"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// PhaseException is one statically-declared entry of the adjacency table:
// the node may run in the given phase even though it does not declare it.
// This is the only sanctioned leniency; everything else fails closed.
type PhaseException struct {
	Phase domain.Phase `yaml:"phase"`
	Node  string       `yaml:"node"`
}

type exceptionKey struct {
	phase domain.Phase
	node  string
}

// PhaseValidator gates node execution and phase transitions. Every check
// defaults to reject: unknown phases, undeclared fields, and unauthorized
// writes are rejections, never pass-throughs.
type PhaseValidator struct {
	reqs       domain.Requirements
	authz      ports.AuthorizationMatrix
	exceptions map[exceptionKey]bool
}

// NewPhaseValidator builds a validator over the workflow's requirements
// table, authorization matrix, and adjacency-exception table.
func NewPhaseValidator(reqs domain.Requirements, authz ports.AuthorizationMatrix, exceptions []PhaseException) *PhaseValidator {
	if authz == nil {
		authz = ports.PermitAll()
	}
	idx := make(map[exceptionKey]bool, len(exceptions))
	for _, e := range exceptions {
		idx[exceptionKey{phase: e.Phase, node: e.Node}] = true
	}
	return &PhaseValidator{
		reqs:       reqs,
		authz:      authz,
		exceptions: idx,
	}
}

// CheckEntry rejects execution when the state's phase is not one the node
// declared, unless the (phase, node) pair is in the exception table.
func (v *PhaseValidator) CheckEntry(spec domain.NodeSpec, state *domain.WorkflowState) error {
	if state == nil || !state.Phase.Valid() {
		return &domain.PhaseMismatchError{
			Node:     spec.Name,
			Expected: spec.ExpectedPhases,
			Actual:   phaseOf(state),
		}
	}
	if spec.Expects(state.Phase) {
		return nil
	}
	if v.exceptions[exceptionKey{phase: state.Phase, node: spec.Name}] {
		return nil
	}
	return &domain.PhaseMismatchError{
		Node:     spec.Name,
		Expected: spec.ExpectedPhases,
		Actual:   state.Phase,
	}
}

// CheckOwnership rejects callers that do not own the session. Fatal.
func (v *PhaseValidator) CheckOwnership(state *domain.WorkflowState, callerID string) error {
	if state == nil || state.UserID != callerID {
		owner := ""
		sessionID := ""
		if state != nil {
			owner = state.UserID
			sessionID = state.SessionID
		}
		return &domain.OwnershipError{SessionID: sessionID, Owner: owner, Caller: callerID}
	}
	return nil
}

// ExitResult is the outcome of a post-execution check.
type ExitResult struct {
	State *domain.WorkflowState
	// Collected lists required-data fields the node newly collected.
	Collected []string
	// Advanced is true when the phase transitioned to the produced phase.
	Advanced bool
	// From is the phase before a transition (equal to State.Phase otherwise).
	From domain.Phase
}

// CheckExit validates the node's output and recomputes the derived phase
// bookkeeping. The phase advances to the node's produced phase only when
// the current phase's required data is fully collected; otherwise the
// state stays in its phase regardless of node output. Violations reject
// the whole execution; the before-state remains the last valid one.
func (v *PhaseValidator) CheckExit(spec domain.NodeSpec, before, after *domain.WorkflowState) (*ExitResult, error) {
	if after == nil {
		return nil, &domain.NodeError{Node: spec.Name, Err: fmt.Errorf("node returned nil state")}
	}

	var violations []string
	if after.SessionID != before.SessionID {
		violations = append(violations, "session_id is immutable")
	}
	if after.UserID != before.UserID {
		violations = append(violations, "user_id is immutable")
	}
	// Phase transitions belong to the validator, not to nodes.
	if after.Phase != before.Phase {
		violations = append(violations, fmt.Sprintf("node %q attempted a direct phase change", spec.Name))
	}
	// So does phase completion: it is derived from required data below,
	// never taken from node output.
	if !maps.Equal(before.PhaseCompletion, after.PhaseCompletion) {
		violations = append(violations, fmt.Sprintf("node %q attempted to write derived phase completion", spec.Name))
	}
	if !auditPreserved(before.AuditTrail, after.AuditTrail) {
		violations = append(violations, "audit trail entries were edited or removed")
	}

	collected := domain.CollectedFields(before, after)
	for _, field := range collected {
		if !v.reqs.Owns(field) {
			violations = append(violations, fmt.Sprintf("field %q is not declared by any phase", field))
			continue
		}
		if !spec.MayWrite(field) || !v.authz.CanWrite(spec.Name, field) {
			violations = append(violations, fmt.Sprintf("node %q is not authorized to set field %q", spec.Name, field))
		}
	}
	// Collection is one-way: once a field is collected, no node output
	// can un-collect it.
	for _, field := range domain.DroppedFields(before, after) {
		violations = append(violations, fmt.Sprintf("node %q dropped collected field %q", spec.Name, field))
	}

	if len(violations) > 0 {
		return nil, &domain.ComplianceViolationError{Violations: violations}
	}

	out := after.Clone()
	from := out.Phase

	completion := clamp01(v.reqs.Completion(from, out.RequiredData))
	out.PhaseCompletion[from] = completion
	out.CanAdvance = completion >= 1.0

	result := &ExitResult{State: out, Collected: collected, From: from}

	if out.CanAdvance && spec.ProducedPhase != "" && spec.ProducedPhase != from {
		// Monotonic only: a produced phase behind the current one is a
		// declaration bug, and fail-closed means no transition.
		if from.Before(spec.ProducedPhase) {
			out.Phase = spec.ProducedPhase
			next := clamp01(v.reqs.Completion(out.Phase, out.RequiredData))
			out.PhaseCompletion[out.Phase] = next
			out.CanAdvance = next >= 1.0
			result.Advanced = true
		}
	}

	return result, nil
}

// Requirements exposes the validator's requirements table.
func (v *PhaseValidator) Requirements() domain.Requirements {
	return v.reqs
}

func auditPreserved(before, after []domain.AuditEntry) bool {
	if len(after) < len(before) {
		return false
	}
	for i := range before {
		if after[i].Timestamp != before[i].Timestamp ||
			after[i].Actor != before[i].Actor ||
			after[i].Event != before[i].Event {
			return false
		}
	}
	return true
}

func phaseOf(state *domain.WorkflowState) domain.Phase {
	if state == nil {
		return ""
	}
	return state.Phase
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
