package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var replayReqs = Requirements{
	PhaseInitialization: {"objective"},
	PhaseDiscovery:      {"audience", "budget"},
}

func TestReplayCompletion_Deterministic(t *testing.T) {
	now := time.Now()
	trail := []AuditEntry{
		{Timestamp: now, Actor: "collect_objective", Event: AuditFieldCollected, FieldsChanged: []string{"objective"}},
		{Timestamp: now, Actor: "collect_objective", Event: AuditPhaseAdvanced, FieldsChanged: []string{string(PhaseDiscovery)}},
		{Timestamp: now, Actor: "discovery_interview", Event: AuditFieldCollected, FieldsChanged: []string{"audience"}},
	}

	first := ReplayCompletion(replayReqs, trail)
	second := ReplayCompletion(replayReqs, trail)

	assert.Equal(t, first, second, "replay must be deterministic")
	assert.Equal(t, 1.0, first[PhaseInitialization])
	assert.Equal(t, 0.5, first[PhaseDiscovery])
}

func TestReplayCompletion_ForcedProgression(t *testing.T) {
	trail := []AuditEntry{
		{Event: AuditForcedProgression, FieldsChanged: []string{"strategy_generator", string(PhaseDiscovery)}},
	}

	completion := ReplayCompletion(replayReqs, trail)
	assert.Contains(t, completion, PhaseDiscovery)
	assert.Equal(t, 0.0, completion[PhaseDiscovery])
}

func TestReplayCompletion_Rewind(t *testing.T) {
	trail := []AuditEntry{
		{Event: AuditFieldCollected, FieldsChanged: []string{"objective"}},
		{Event: AuditPhaseAdvanced, FieldsChanged: []string{string(PhaseDiscovery)}},
		{Event: AuditCheckpointRewind, FieldsChanged: []string{string(PhaseInitialization)}},
	}

	completion := ReplayCompletion(replayReqs, trail)
	assert.Equal(t, 1.0, completion[PhaseInitialization])
}

func TestReplayCompletion_IgnoresMalformedEntries(t *testing.T) {
	trail := []AuditEntry{
		{Event: AuditPhaseAdvanced},                                   // no fields
		{Event: AuditPhaseAdvanced, FieldsChanged: []string{"BOGUS"}}, // unknown phase
		{Event: "unknown_event", FieldsChanged: []string{"objective"}},
	}

	completion := ReplayCompletion(replayReqs, trail)
	assert.Equal(t, 0.0, completion[PhaseInitialization])
}

func TestAppendAudit(t *testing.T) {
	s := NewWorkflowState("sess-1", "user-1")
	now := time.Now()

	s.AppendAudit("collect_objective", AuditNodeExecuted, []string{FieldContextData}, now)
	s.AppendAudit(string(CommandRestart), AuditGlobalCommand, nil, now)

	assert.Len(t, s.AuditTrail, 2)
	assert.Equal(t, "collect_objective", s.AuditTrail[0].Actor)
	assert.Equal(t, AuditGlobalCommand, s.AuditTrail[1].Event)
}

func TestRequirements(t *testing.T) {
	reqs := Requirements{
		PhaseInitialization: {"objective"},
		PhaseDiscovery:      {"audience", "budget"},
	}

	collected := map[string]bool{}
	assert.Equal(t, 0.0, reqs.Completion(PhaseInitialization, collected))
	assert.False(t, reqs.Complete(PhaseInitialization, collected))

	collected["objective"] = true
	assert.Equal(t, 1.0, reqs.Completion(PhaseInitialization, collected))
	assert.True(t, reqs.Complete(PhaseInitialization, collected))

	// Phases with no declared fields are trivially complete.
	assert.True(t, reqs.Complete(PhaseCompletion, collected))

	assert.True(t, reqs.Owns("budget"))
	assert.False(t, reqs.Owns("unknown_field"))
}
