package stateview_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/stateview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_CopyOnWrite(t *testing.T) {
	old := sampleState()
	v := stateview.Of(old)

	next, err := v.Update(ports.AllowAll(), "collect_objective", map[string]any{
		domain.FieldContextData:  map[string]any{"budget": 5000},
		domain.FieldRequiredData: map[string]bool{"audience": true},
		domain.FieldCurrentNode:  "discovery_interview",
	})
	require.NoError(t, err)

	assert.Equal(t, "discovery_interview", next.CurrentNode)
	assert.Equal(t, 5000, next.ContextData["budget"])
	assert.True(t, next.RequiredData["audience"])

	// Original snapshot untouched.
	assert.Equal(t, "collect_objective", old.CurrentNode)
	assert.NotContains(t, old.ContextData, "budget")
	assert.False(t, old.RequiredData["audience"])
}

func TestUpdate_RejectsDerivedAndImmutableFields(t *testing.T) {
	for _, key := range []string{"can_advance", "audit_trail", "workflow_phase", "session_id", "user_id"} {
		t.Run(key, func(t *testing.T) {
			old := sampleState()
			got, err := stateview.Of(old).Update(ports.AllowAll(), "rogue_node", map[string]any{
				key: "anything",
			})

			var cv *domain.ComplianceViolationError
			require.ErrorAs(t, err, &cv)

			// Original content preserved, plus one recorded violation.
			assert.Equal(t, old.Phase, got.Phase)
			assert.Equal(t, old.ContextData, got.ContextData)
			require.Len(t, got.AuditTrail, len(old.AuditTrail)+1)
			last := got.AuditTrail[len(got.AuditTrail)-1]
			assert.Equal(t, domain.AuditUpdateRejected, last.Event)
			assert.Equal(t, "rogue_node", last.Actor)
		})
	}
}

func TestUpdate_HookRejection_NoPartialState(t *testing.T) {
	old := sampleState()
	deny := ports.ComplianceFunc(func(o, n *domain.WorkflowState) (bool, []string) {
		return false, []string{"pii detected in context_data"}
	})

	got, err := stateview.Of(old).Update(deny, "collect_objective", map[string]any{
		domain.FieldContextData: map[string]any{"email": "x@example.com"},
	})

	var cv *domain.ComplianceViolationError
	require.ErrorAs(t, err, &cv)
	assert.Contains(t, cv.Violations, "pii detected in context_data")

	// The change never happened: not even the valid part is applied.
	assert.NotContains(t, got.ContextData, "email")
}

func TestUpdate_BadValueTypes(t *testing.T) {
	old := sampleState()
	_, err := stateview.Of(old).Update(ports.AllowAll(), "n", map[string]any{
		domain.FieldCurrentNode: 17,
	})
	var cv *domain.ComplianceViolationError
	require.ErrorAs(t, err, &cv)
}

func TestUpdate_AppendsMessages(t *testing.T) {
	old := sampleState()
	next, err := stateview.Of(old).Update(ports.AllowAll(), "n", map[string]any{
		domain.FieldMessages: []domain.Message{{Role: "assistant", Content: "noted"}},
	})
	require.NoError(t, err)
	require.Len(t, next.MessageHistory, 2)
	assert.Equal(t, "noted", next.MessageHistory[1].Content)
	assert.False(t, next.MessageHistory[1].Timestamp.IsZero())
}

func TestUpdate_GenericBacking(t *testing.T) {
	old := sampleState()
	v := stateview.Of(genericForm(t, old))

	next, err := v.Update(ports.AllowAll(), "n", map[string]any{
		domain.FieldContextData: map[string]any{"channel": "email"},
	})
	require.NoError(t, err)
	assert.Equal(t, "email", next.ContextData["channel"])
	assert.Equal(t, old.SessionID, next.SessionID)
}
