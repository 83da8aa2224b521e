package domain

// TurnRequest is what the pre-authenticated caller boundary supplies for
// one conversational turn.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

// TurnResult is the caller-facing outcome of a turn. Err is set for the
// fatal error classes; the returned state is always the last valid one.
type TurnResult struct {
	Phase      Phase            `json:"workflow_phase"`
	CanAdvance bool             `json:"can_advance"`
	Messages   []Message        `json:"messages"`
	Err        *StructuredError `json:"error,omitempty"`

	// State is the persisted snapshot backing the fields above.
	State *WorkflowState `json:"-"`
}
