package ports

import (
	"github.com/aretw0/parley/pkg/domain"
)

// ComplianceHook validates every copy-on-write state update before the
// new instance is considered valid. A false result makes the update a
// no-op; violations describe why. Implementations must be side-effect
// free on the states they inspect.
type ComplianceHook interface {
	Validate(old, new *domain.WorkflowState) (ok bool, violations []string)
}

// ComplianceFunc adapts a function to the ComplianceHook interface.
type ComplianceFunc func(old, new *domain.WorkflowState) (bool, []string)

func (f ComplianceFunc) Validate(old, new *domain.WorkflowState) (bool, []string) {
	return f(old, new)
}

// AllowAll is the development hook: every update passes.
func AllowAll() ComplianceHook {
	return ComplianceFunc(func(old, new *domain.WorkflowState) (bool, []string) {
		return true, nil
	})
}

// AuthorizationMatrix decides which required-data fields a node may
// collect. Ambiguous ownership defaults to reject.
type AuthorizationMatrix interface {
	CanWrite(node, field string) bool
}

// AuthorizationFunc adapts a function to the AuthorizationMatrix interface.
type AuthorizationFunc func(node, field string) bool

func (f AuthorizationFunc) CanWrite(node, field string) bool {
	return f(node, field)
}

// PermitAll is the development matrix: every node may write every field.
func PermitAll() AuthorizationMatrix {
	return AuthorizationFunc(func(node, field string) bool { return true })
}
