package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDiffFields_NoChanges(t *testing.T) {
	s := NewWorkflowState("sess-1", "user-1")
	assert.Empty(t, DiffFields(s, s.Clone()))
}

func TestDiffFields_TracksChanges(t *testing.T) {
	old := NewWorkflowState("sess-1", "user-1")
	new := old.Clone()

	new.CurrentNode = "collect_objective"
	new.ContextData["topic"] = "pricing"
	new.AppendMessage("user", "hello", time.Now())

	changed := DiffFields(old, new)
	assert.Equal(t, []string{FieldContextData, FieldCurrentNode, FieldMessages}, changed)
}

func TestDiffFields_PhaseAdvance(t *testing.T) {
	old := NewWorkflowState("sess-1", "user-1")
	new := old.Clone()
	new.Phase = PhaseDiscovery
	new.PhaseCompletion[PhaseInitialization] = 1.0
	new.CanAdvance = true

	changed := DiffFields(old, new)
	assert.Contains(t, changed, FieldPhase)
	assert.Contains(t, changed, FieldPhaseCompletion)
	assert.Contains(t, changed, FieldCanAdvance)
}

func TestDiffFields_NilOld(t *testing.T) {
	s := NewWorkflowState("sess-1", "user-1")
	changed := DiffFields(nil, s)
	assert.Contains(t, changed, FieldPhase)
	assert.Contains(t, changed, FieldCurrentNode)
}

func TestCollectedFields(t *testing.T) {
	old := NewWorkflowState("sess-1", "user-1")
	old.RequiredData["objective"] = true

	new := old.Clone()
	new.RequiredData["audience"] = true
	new.RequiredData["budget"] = true
	new.RequiredData["objective"] = false // rollback is not reported

	assert.Equal(t, []string{"audience", "budget"}, CollectedFields(old, new))
	assert.Equal(t, []string{"objective"}, CollectedFields(nil, old))
}

func TestDroppedFields(t *testing.T) {
	old := NewWorkflowState("sess-1", "user-1")
	old.RequiredData["objective"] = true
	old.RequiredData["audience"] = true

	new := old.Clone()
	new.RequiredData["objective"] = false
	new.RequiredData["budget"] = true

	assert.Equal(t, []string{"objective"}, DroppedFields(old, new))
	assert.Empty(t, DroppedFields(old, old.Clone()))
	assert.Empty(t, DroppedFields(nil, new))
}
