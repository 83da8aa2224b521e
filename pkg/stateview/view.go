package stateview

import (
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// View is a uniform read layer over a workflow state regardless of its
// representation. State that crosses a serialization boundary can come
// back as a generic key-value map instead of the structured record; every
// reader behaves identically against both backings. The backing adapter
// is chosen once, at construction.
type View struct {
	structured *domain.WorkflowState
	generic    map[string]any
}

// Of wraps a state value. Accepted representations: *WorkflowState,
// WorkflowState, and map[string]any. Anything else (including nil) yields
// an empty view whose reads all hit their defaults; Of never fails.
func Of(state any) View {
	switch s := state.(type) {
	case *domain.WorkflowState:
		return View{structured: s}
	case domain.WorkflowState:
		return View{structured: &s}
	case map[string]any:
		return View{generic: s}
	}
	return View{}
}

// Get returns the value for a top-level state key, or def when the key is
// missing, renamed, or the view is empty. It never panics.
func (v View) Get(key string, def any) any {
	if v.structured != nil {
		if val, ok := structField(v.structured, key); ok {
			return val
		}
		return def
	}
	if v.generic != nil {
		if val, ok := v.generic[key]; ok && val != nil {
			return val
		}
	}
	return def
}

// Value is the typed form of Get: the stored value must assert to T,
// otherwise def is returned.
func Value[T any](v View, key string, def T) T {
	raw := v.Get(key, nil)
	if raw == nil {
		return def
	}
	if typed, ok := raw.(T); ok {
		return typed
	}
	return def
}

// SessionID returns the session identifier, empty when absent.
func (v View) SessionID() string {
	if s, ok := v.Get("session_id", "").(string); ok {
		return s
	}
	return ""
}

// UserID returns the owning user identifier, empty when absent.
func (v View) UserID() string {
	if s, ok := v.Get("user_id", "").(string); ok {
		return s
	}
	return ""
}

// Phase returns the workflow phase. Missing or unparseable values fall
// back to INITIALIZATION, the safe first phase.
func (v View) Phase() domain.Phase {
	raw := v.Get(domain.FieldPhase, string(domain.PhaseInitialization))
	switch p := raw.(type) {
	case domain.Phase:
		if p.Valid() {
			return p
		}
	case string:
		if parsed, ok := domain.ParsePhase(p); ok {
			return parsed
		}
	}
	return domain.PhaseInitialization
}

// CurrentNode returns the name of the node that last executed.
func (v View) CurrentNode() string {
	if s, ok := v.Get(domain.FieldCurrentNode, "").(string); ok {
		return s
	}
	return ""
}

// CanAdvance reports the derived advancement flag.
func (v View) CanAdvance() bool {
	if b, ok := v.Get(domain.FieldCanAdvance, false).(bool); ok {
		return b
	}
	return false
}

// Completion returns the collected fraction for a phase, 0 when unknown.
func (v View) Completion(p domain.Phase) float64 {
	if v.structured != nil {
		return v.structured.PhaseCompletion[p]
	}
	raw := v.Get(domain.FieldPhaseCompletion, nil)
	switch m := raw.(type) {
	case map[domain.Phase]float64:
		return m[p]
	case map[string]float64:
		return m[string(p)]
	case map[string]any:
		if f, ok := m[string(p)].(float64); ok {
			return f
		}
	}
	return 0
}

// Messages returns the full conversation history.
func (v View) Messages() []domain.Message {
	if v.structured != nil {
		return v.structured.MessageHistory
	}
	return v.State().MessageHistory
}

// ContextValue reads one key out of the node-to-node scratch map.
func (v View) ContextValue(key string, def any) any {
	raw := v.Get(domain.FieldContextData, nil)
	if m, ok := raw.(map[string]any); ok {
		if val, exists := m[key]; exists && val != nil {
			return val
		}
	}
	return def
}

// Collected reports whether a required-data field has been collected.
func (v View) Collected(field string) bool {
	raw := v.Get(domain.FieldRequiredData, nil)
	switch m := raw.(type) {
	case map[string]bool:
		return m[field]
	case map[string]any:
		if b, ok := m[field].(bool); ok {
			return b
		}
	}
	return false
}

// State materializes the structured record. A map backing is decoded once
// via mapstructure; decode problems surface as an empty (but usable)
// state rather than an error, keeping the accessor total.
func (v View) State() *domain.WorkflowState {
	if v.structured != nil {
		return v.structured
	}
	state := &domain.WorkflowState{}
	if v.generic != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           state,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
				mapstructure.StringToTimeDurationHookFunc(),
			),
		})
		if err == nil {
			_ = decoder.Decode(v.generic)
		}
	}
	if state.PhaseCompletion == nil {
		state.PhaseCompletion = make(map[domain.Phase]float64)
	}
	if state.RequiredData == nil {
		state.RequiredData = make(map[string]bool)
	}
	if state.ContextData == nil {
		state.ContextData = make(map[string]any)
	}
	if state.RecoveryAttempts == nil {
		state.RecoveryAttempts = make(map[string]int)
	}
	if state.ErrorRecovery == nil {
		state.ErrorRecovery = make(map[string]domain.ErrorRecord)
	}
	if state.Phase == "" {
		state.Phase = domain.PhaseInitialization
	}
	return state
}

// structField resolves a top-level key against the structured record.
func structField(s *domain.WorkflowState, key string) (any, bool) {
	switch key {
	case "session_id":
		return s.SessionID, true
	case "user_id":
		return s.UserID, true
	case domain.FieldCurrentNode:
		return s.CurrentNode, true
	case domain.FieldPhase:
		return s.Phase, true
	case domain.FieldPhaseCompletion:
		return s.PhaseCompletion, true
	case domain.FieldRequiredData:
		return s.RequiredData, true
	case domain.FieldCanAdvance:
		return s.CanAdvance, true
	case domain.FieldMessages:
		return s.MessageHistory, true
	case domain.FieldCheckpoints:
		return s.Checkpoints, true
	case domain.FieldContextData:
		return s.ContextData, true
	case "audit_trail":
		return s.AuditTrail, true
	case domain.FieldRecovery:
		return s.RecoveryAttempts, true
	case domain.FieldErrorRecovery:
		return s.ErrorRecovery, true
	}
	return nil, false
}
