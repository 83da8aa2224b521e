package domain

import (
	"reflect"
	"sort"
)

// Top-level field names as they appear in audit fields_changed lists and
// in StateView update maps.
const (
	FieldCurrentNode     = "current_node"
	FieldPhase           = "workflow_phase"
	FieldPhaseCompletion = "phase_completion"
	FieldRequiredData    = "required_data_collected"
	FieldCanAdvance      = "can_advance"
	FieldMessages        = "messages"
	FieldCheckpoints     = "conversation_checkpoints"
	FieldContextData     = "context_data"
	FieldRecovery        = "recovery_attempts"
	FieldErrorRecovery   = "error_recovery_state"
)

// DiffFields lists the top-level state fields that differ between two
// snapshots, sorted for deterministic audit entries. A nil old state
// reports every populated field of new.
func DiffFields(old, new *WorkflowState) []string {
	if new == nil {
		return nil
	}
	var changed []string
	add := func(f string) { changed = append(changed, f) }

	if old == nil || old.CurrentNode != new.CurrentNode {
		add(FieldCurrentNode)
	}
	if old == nil || old.Phase != new.Phase {
		add(FieldPhase)
	}
	if old == nil || !reflect.DeepEqual(old.PhaseCompletion, new.PhaseCompletion) {
		add(FieldPhaseCompletion)
	}
	if old == nil || !reflect.DeepEqual(old.RequiredData, new.RequiredData) {
		add(FieldRequiredData)
	}
	if old == nil || old.CanAdvance != new.CanAdvance {
		add(FieldCanAdvance)
	}
	if old == nil || len(old.MessageHistory) != len(new.MessageHistory) {
		add(FieldMessages)
	}
	if old == nil || len(old.Checkpoints) != len(new.Checkpoints) {
		add(FieldCheckpoints)
	}
	if old == nil || !reflect.DeepEqual(old.ContextData, new.ContextData) {
		add(FieldContextData)
	}
	if old == nil || !reflect.DeepEqual(old.RecoveryAttempts, new.RecoveryAttempts) {
		add(FieldRecovery)
	}
	if old == nil || !reflect.DeepEqual(old.ErrorRecovery, new.ErrorRecovery) {
		add(FieldErrorRecovery)
	}

	sort.Strings(changed)
	return changed
}

// CollectedFields lists required-data fields that flipped to collected
// between two snapshots, sorted. Fields flipping back to false are not
// reported; collection is one-way.
func CollectedFields(old, new *WorkflowState) []string {
	if new == nil {
		return nil
	}
	var fields []string
	for f, v := range new.RequiredData {
		if !v {
			continue
		}
		if old == nil || !old.RequiredData[f] {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

// DroppedFields lists required-data fields that flipped from collected
// back to uncollected between two snapshots, sorted. Collection is
// one-way, so the exit gate treats any such flip as a violation.
func DroppedFields(old, new *WorkflowState) []string {
	if old == nil || new == nil {
		return nil
	}
	var fields []string
	for f, v := range old.RequiredData {
		if v && !new.RequiredData[f] {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}
