package stateview

import (
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Keys a node may address in an Update call. Everything else is either
// derived (can_advance), append-only (audit_trail), immutable
// (session_id, user_id), or owned by the validator (workflow_phase) —
// touching those is rejected outright.
var updatableKeys = map[string]bool{
	domain.FieldCurrentNode:  true,
	domain.FieldContextData:  true,
	domain.FieldRequiredData: true,
	domain.FieldMessages:     true,
}

// Update applies changes copy-on-write and runs the compliance hook
// before the new instance is considered valid. On rejection — by key
// policy or by the hook — the original state is returned untouched except
// for one appended audit entry recording the violation, together with a
// ComplianceViolationError. A partially-applied state is never returned.
func (v View) Update(hook ports.ComplianceHook, actor string, changes map[string]any) (*domain.WorkflowState, error) {
	old := v.State()
	next := old.Clone()

	var violations []string
	for key, value := range changes {
		if !updatableKeys[key] {
			violations = append(violations, fmt.Sprintf("field %q is not node-writable", key))
			continue
		}
		if err := applyChange(next, key, value); err != nil {
			violations = append(violations, err.Error())
		}
	}

	if len(violations) == 0 && hook != nil {
		ok, hookViolations := hook.Validate(old, next)
		if !ok {
			violations = append(violations, hookViolations...)
			if len(violations) == 0 {
				violations = append(violations, "compliance hook rejected update")
			}
		}
	}

	if len(violations) > 0 {
		rejected := old.Clone()
		rejected.AppendAudit(actor, domain.AuditUpdateRejected, violations, time.Now().UTC())
		return rejected, &domain.ComplianceViolationError{Violations: violations}
	}

	return next, nil
}

func applyChange(state *domain.WorkflowState, key string, value any) error {
	switch key {
	case domain.FieldCurrentNode:
		node, ok := value.(string)
		if !ok {
			return fmt.Errorf("current_node must be a string, got %T", value)
		}
		state.CurrentNode = node

	case domain.FieldContextData:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("context_data must be a map, got %T", value)
		}
		for k, v := range m {
			state.ContextData[k] = v
		}

	case domain.FieldRequiredData:
		switch m := value.(type) {
		case map[string]bool:
			for k, v := range m {
				state.RequiredData[k] = v
			}
		case map[string]any:
			for k, v := range m {
				b, ok := v.(bool)
				if !ok {
					return fmt.Errorf("required_data_collected[%q] must be a bool, got %T", k, v)
				}
				state.RequiredData[k] = b
			}
		default:
			return fmt.Errorf("required_data_collected must be a map, got %T", value)
		}

	case domain.FieldMessages:
		msgs, ok := value.([]domain.Message)
		if !ok {
			return fmt.Errorf("messages must be []domain.Message, got %T", value)
		}
		for _, m := range msgs {
			at := m.Timestamp
			if at.IsZero() {
				at = time.Now().UTC()
			}
			state.AppendMessage(m.Role, m.Content, at)
		}
	}
	return nil
}
