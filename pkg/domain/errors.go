package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrCacheUnavailable marks a cache backend failure. It never reaches the
// caller; the session cache degrades to its in-memory fallback instead.
var ErrCacheUnavailable = errors.New("cache backend unavailable")

// Classified is implemented by the error taxonomy so boundaries can build
// the caller-facing structured error without type-switching every class.
type Classified interface {
	error
	Kind() string
	Retryable() bool
}

// PhaseMismatchError rejects a node that ran outside its declared phases.
// Recoverable: the orchestrator re-routes to the node for the actual phase.
type PhaseMismatchError struct {
	Node     string
	Expected []Phase
	Actual   Phase
}

func (e *PhaseMismatchError) Error() string {
	names := make([]string, len(e.Expected))
	for i, p := range e.Expected {
		names[i] = string(p)
	}
	return fmt.Sprintf("node %q expects phase %s, state is in %s",
		e.Node, strings.Join(names, "|"), e.Actual)
}

func (e *PhaseMismatchError) Kind() string    { return "phase_mismatch" }
func (e *PhaseMismatchError) Retryable() bool { return true }

// LoopDetectedError is raised when the circuit breaker finds pathological
// re-execution and no safe forced node exists. Fatal for the turn; the
// session's last valid state is preserved.
type LoopDetectedError struct {
	Node   string
	Visits int
}

func (e *LoopDetectedError) Error() string {
	return fmt.Sprintf("node %q revisited %d times without phase progression", e.Node, e.Visits)
}

func (e *LoopDetectedError) Kind() string    { return "loop_detected" }
func (e *LoopDetectedError) Retryable() bool { return false }

// RecursionBudgetError is raised when a single turn exceeds its total
// orchestration step budget. Fatal for the turn, state preserved.
type RecursionBudgetError struct {
	Budget int
}

func (e *RecursionBudgetError) Error() string {
	return fmt.Sprintf("recursion budget of %d orchestration steps exceeded", e.Budget)
}

func (e *RecursionBudgetError) Kind() string    { return "recursion_budget_exceeded" }
func (e *RecursionBudgetError) Retryable() bool { return false }

// NodeTimeoutError marks a node that exceeded its execution deadline.
// Retried up to the configured limit, then escalated.
type NodeTimeoutError struct {
	Node    string
	Timeout time.Duration
}

func (e *NodeTimeoutError) Error() string {
	return fmt.Sprintf("node %q timed out after %s", e.Node, e.Timeout)
}

func (e *NodeTimeoutError) Kind() string    { return "node_timeout" }
func (e *NodeTimeoutError) Retryable() bool { return true }

// ComplianceViolationError marks an update the compliance hook rejected.
// Fail-closed: the update never happened.
type ComplianceViolationError struct {
	Violations []string
}

func (e *ComplianceViolationError) Error() string {
	return fmt.Sprintf("compliance hook rejected update: %s", strings.Join(e.Violations, "; "))
}

func (e *ComplianceViolationError) Kind() string    { return "compliance_violation" }
func (e *ComplianceViolationError) Retryable() bool { return false }

// OwnershipError marks a caller whose user ID does not match the session
// owner. Fatal, never recoverable.
type OwnershipError struct {
	SessionID string
	Owner     string
	Caller    string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("session %q belongs to %q, caller is %q", e.SessionID, e.Owner, e.Caller)
}

func (e *OwnershipError) Kind() string    { return "ownership_mismatch" }
func (e *OwnershipError) Retryable() bool { return false }

// NodeError wraps a business-node failure that is neither a timeout nor
// a validation rejection. Absorbed into error_recovery_state and retried.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error   { return e.Err }
func (e *NodeError) Kind() string    { return "node_error" }
func (e *NodeError) Retryable() bool { return true }

// StructuredError is the caller-facing shape of any failure: never a raw
// error chain, never a silent hang.
type StructuredError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Structure converts any error into its caller-facing form. Unclassified
// errors come out as a non-retryable internal failure.
func Structure(err error) *StructuredError {
	if err == nil {
		return nil
	}
	var c Classified
	if errors.As(err, &c) {
		return &StructuredError{Kind: c.Kind(), Message: c.Error(), Retryable: c.Retryable()}
	}
	return &StructuredError{Kind: "internal", Message: err.Error(), Retryable: false}
}

// Fatal reports whether the error class must propagate past the
// orchestrator boundary instead of being absorbed and retried.
func Fatal(err error) bool {
	var c Classified
	if errors.As(err, &c) {
		return !c.Retryable()
	}
	return false
}
