package domain

import (
	"time"
)

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role" mapstructure:"role"`
	Content   string    `json:"content" mapstructure:"content"`
	Timestamp time.Time `json:"timestamp" mapstructure:"timestamp"`
}

// Checkpoint is a named rollback point captured when a phase completes.
// Rewinding restores the phase bookkeeping recorded here; messages are
// never truncated (the conversation itself is append-only).
type Checkpoint struct {
	Name          string            `json:"name" mapstructure:"name"`
	Phase         Phase             `json:"phase" mapstructure:"phase"`
	Completion    map[Phase]float64 `json:"completion" mapstructure:"completion"`
	Collected     map[string]bool   `json:"collected" mapstructure:"collected"`
	CurrentNode   string            `json:"current_node" mapstructure:"current_node"`
	TakenAt       time.Time         `json:"taken_at" mapstructure:"taken_at"`
	MessageOffset int               `json:"message_offset" mapstructure:"message_offset"`
}

// ErrorRecord describes the last failure observed for a node.
type ErrorRecord struct {
	Node       string    `json:"node" mapstructure:"node"`
	Kind       string    `json:"kind" mapstructure:"kind"`
	Message    string    `json:"message" mapstructure:"message"`
	OccurredAt time.Time `json:"occurred_at" mapstructure:"occurred_at"`
}

// WorkflowState is the snapshot of one conversation's progress. It is
// treated as immutable: every mutation goes through Clone (copy-on-write)
// so that a node always receives a snapshot nobody else is writing to.
type WorkflowState struct {
	SessionID string `json:"session_id" mapstructure:"session_id"`
	UserID    string `json:"user_id" mapstructure:"user_id"`

	// CurrentNode is the name of the node that last executed.
	CurrentNode string `json:"current_node" mapstructure:"current_node"`

	// Phase is the workflow phase the session is currently in.
	Phase Phase `json:"workflow_phase" mapstructure:"workflow_phase"`

	// PhaseCompletion maps each visited phase to the fraction [0,1] of
	// its required data already collected.
	PhaseCompletion map[Phase]float64 `json:"phase_completion" mapstructure:"phase_completion"`

	// RequiredData tracks which declared fields have been collected.
	// Field names are phase-scoped by the workflow's requirements table.
	RequiredData map[string]bool `json:"required_data_collected" mapstructure:"required_data_collected"`

	// CanAdvance is derived from PhaseCompletion, never set by nodes.
	CanAdvance bool `json:"can_advance" mapstructure:"can_advance"`

	// Messages holds the turns produced during the current orchestration
	// turn; MessageHistory accumulates the whole conversation.
	Messages       []Message `json:"messages" mapstructure:"messages"`
	MessageHistory []Message `json:"message_history" mapstructure:"message_history"`

	// Checkpoints are ordered rollback points, newest last.
	Checkpoints []Checkpoint `json:"conversation_checkpoints" mapstructure:"conversation_checkpoints"`

	// ContextData is schema-less scratch space for node-to-node data.
	ContextData map[string]any `json:"context_data" mapstructure:"context_data"`

	// AuditTrail is append-only; entries are never edited or removed.
	AuditTrail []AuditEntry `json:"audit_trail" mapstructure:"audit_trail"`

	// RecoveryAttempts counts retries per node name.
	RecoveryAttempts map[string]int `json:"recovery_attempts" mapstructure:"recovery_attempts"`

	// ErrorRecovery holds the last error descriptor per node name.
	ErrorRecovery map[string]ErrorRecord `json:"error_recovery_state" mapstructure:"error_recovery_state"`
}

// NewWorkflowState creates the state for first contact: phase
// INITIALIZATION, empty trail.
func NewWorkflowState(sessionID, userID string) *WorkflowState {
	return &WorkflowState{
		SessionID:        sessionID,
		UserID:           userID,
		Phase:            PhaseInitialization,
		PhaseCompletion:  map[Phase]float64{PhaseInitialization: 0},
		RequiredData:     make(map[string]bool),
		ContextData:      make(map[string]any),
		RecoveryAttempts: make(map[string]int),
		ErrorRecovery:    make(map[string]ErrorRecord),
	}
}

// Clone produces a deep copy. Slices and maps are copied so the original
// snapshot stays untouched no matter what the caller does to the clone.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	c.PhaseCompletion = make(map[Phase]float64, len(s.PhaseCompletion))
	for k, v := range s.PhaseCompletion {
		c.PhaseCompletion[k] = v
	}
	c.RequiredData = make(map[string]bool, len(s.RequiredData))
	for k, v := range s.RequiredData {
		c.RequiredData[k] = v
	}
	c.ContextData = deepCopyAnyMap(s.ContextData)
	c.RecoveryAttempts = make(map[string]int, len(s.RecoveryAttempts))
	for k, v := range s.RecoveryAttempts {
		c.RecoveryAttempts[k] = v
	}
	c.ErrorRecovery = make(map[string]ErrorRecord, len(s.ErrorRecovery))
	for k, v := range s.ErrorRecovery {
		c.ErrorRecovery[k] = v
	}
	c.Messages = append([]Message(nil), s.Messages...)
	c.MessageHistory = append([]Message(nil), s.MessageHistory...)
	c.AuditTrail = append([]AuditEntry(nil), s.AuditTrail...)
	c.Checkpoints = make([]Checkpoint, len(s.Checkpoints))
	for i, cp := range s.Checkpoints {
		copied := cp
		copied.Completion = make(map[Phase]float64, len(cp.Completion))
		for k, v := range cp.Completion {
			copied.Completion[k] = v
		}
		copied.Collected = make(map[string]bool, len(cp.Collected))
		for k, v := range cp.Collected {
			copied.Collected[k] = v
		}
		c.Checkpoints[i] = copied
	}
	return &c
}

// AppendMessage records a conversation turn on both the current-turn
// window and the full history.
func (s *WorkflowState) AppendMessage(role, content string, at time.Time) {
	msg := Message{Role: role, Content: content, Timestamp: at}
	s.Messages = append(s.Messages, msg)
	s.MessageHistory = append(s.MessageHistory, msg)
}

// LastCheckpoint returns the most recent checkpoint, if any.
func (s *WorkflowState) LastCheckpoint() (Checkpoint, bool) {
	if len(s.Checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return s.Checkpoints[len(s.Checkpoints)-1], true
}

func deepCopyAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyAnyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}
