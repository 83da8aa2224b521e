package domain

import (
	"time"
)

// Audit event names. Field-collection and phase-advance events carry
// enough information in FieldsChanged to be replayed deterministically.
const (
	AuditNodeExecuted      = "node_executed"
	AuditNodeFailed        = "node_failed"
	AuditFieldCollected    = "field_collected"
	AuditPhaseAdvanced     = "phase_advanced"
	AuditCheckpointTaken   = "checkpoint_taken"
	AuditCheckpointRewind  = "checkpoint_rewind"
	AuditForcedProgression = "forced_progression"
	AuditGlobalCommand     = "global_command"
	AuditUpdateRejected    = "update_rejected"
	AuditSessionStarted    = "session_started"
)

// ActorSystem marks trail entries written by the orchestrator itself
// rather than by a business node or a global command.
const ActorSystem = "system"

// AuditEntry is one append-only record of a transition. Entries are
// never edited or removed once appended.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp" mapstructure:"timestamp"`
	// Actor is the node name or global command that caused the entry.
	Actor string `json:"actor" mapstructure:"actor"`
	Event string `json:"event" mapstructure:"event"`
	// FieldsChanged lists the state fields the transition touched. For
	// field_collected events these are the collected field names; for
	// phase_advanced the single element is the new phase.
	FieldsChanged []string `json:"fields_changed" mapstructure:"fields_changed"`
}

// AppendAudit adds an entry to the trail. The trail is append-only by
// contract; this is the only sanctioned way to grow it.
func (s *WorkflowState) AppendAudit(actor, event string, fields []string, at time.Time) {
	s.AuditTrail = append(s.AuditTrail, AuditEntry{
		Timestamp:     at,
		Actor:         actor,
		Event:         event,
		FieldsChanged: fields,
	})
}

// ReplayCompletion reconstructs the phase_completion map by replaying a
// trail against an initial (empty) state. Replaying the same trail with
// the same requirements always yields the same map, which is what makes
// the trail usable for compliance reconstruction.
func ReplayCompletion(reqs Requirements, trail []AuditEntry) map[Phase]float64 {
	collected := make(map[string]bool)
	phase := PhaseInitialization
	completion := map[Phase]float64{phase: reqs.Completion(phase, collected)}

	for _, entry := range trail {
		switch entry.Event {
		case AuditFieldCollected:
			for _, f := range entry.FieldsChanged {
				collected[f] = true
			}
		case AuditPhaseAdvanced, AuditForcedProgression:
			if len(entry.FieldsChanged) == 0 {
				continue
			}
			if p, ok := ParsePhase(entry.FieldsChanged[len(entry.FieldsChanged)-1]); ok {
				phase = p
			}
		case AuditCheckpointRewind:
			if len(entry.FieldsChanged) == 0 {
				continue
			}
			if p, ok := ParsePhase(entry.FieldsChanged[0]); ok {
				phase = p
			}
		}
		completion[phase] = reqs.Completion(phase, collected)
	}
	return completion
}
