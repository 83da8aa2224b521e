package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
)

func testEngine(t *testing.T) *parley.Engine {
	t.Helper()
	wf := parley.NewWorkflow().
		Node(domain.NodeSpec{
			Name:           "collect_objective",
			ExpectedPhases: []domain.Phase{domain.PhaseInitialization},
			ProducedPhase:  domain.PhaseDiscovery,
			Writes:         []string{"objective"},
		}, func(ctx context.Context, state *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			if _, asked := state.ContextData["asked"]; !asked {
				state.ContextData["asked"] = true
				state.AppendMessage("assistant", "What is the objective?", time.Now())
				return state, nil
			}
			state.RequiredData["objective"] = true
			state.AppendMessage("assistant", "Noted.", time.Now())
			return state, nil
		}).
		Node(domain.NodeSpec{
			Name:           "discovery_interview",
			ExpectedPhases: []domain.Phase{domain.PhaseDiscovery},
			ProducedPhase:  domain.PhaseAnalysis,
			Writes:         []string{"context_notes"},
		}, func(ctx context.Context, state *domain.WorkflowState, input string) (*domain.WorkflowState, error) {
			state.AppendMessage("assistant", "Tell me about the context.", time.Now())
			return state, nil
		}).
		PhaseNode(domain.PhaseInitialization, "collect_objective").
		PhaseNode(domain.PhaseDiscovery, "discovery_interview").
		Require(domain.PhaseInitialization, "objective").
		Require(domain.PhaseDiscovery, "context_notes")

	engine, err := parley.New(wf)
	require.NoError(t, err)
	return engine
}

func testServer(t *testing.T) http.Handler {
	t.Helper()
	return NewServer(testEngine(t)).Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTurnEndpoint(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "u1", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.PhaseInitialization, res.Phase)
	assert.False(t, res.CanAdvance)
	require.Len(t, res.Messages, 2)

	rec = doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "u1", `{"message":"ship the beta"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.PhaseDiscovery, res.Phase)
}

func TestTurnRequiresIdentity(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTurnRejectsForeignCaller(t *testing.T) {
	h := testServer(t)

	doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "u1", `{"message":"hi"}`)
	rec := doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "mallory", `{"message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var out map[string]domain.StructuredError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ownership_mismatch", out["error"].Kind)
}

func TestGetSession(t *testing.T) {
	h := testServer(t)

	doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "u1", `{"message":"hi"}`)
	rec := doJSON(t, h, http.MethodGet, "/v1/sessions/s1/", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state domain.WorkflowState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "s1", state.SessionID)
	assert.Equal(t, domain.PhaseInitialization, state.Phase)

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/nope/", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateSession(t *testing.T) {
	h := testServer(t)

	doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "u1", `{"message":"hi"}`)

	rec := doJSON(t, h, http.MethodPatch, "/v1/sessions/s1/", "u1",
		`{"actor":"crm_sync","changes":{"context_data":{"tier":"gold"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var state domain.WorkflowState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "gold", state.ContextData["tier"])

	// Protected fields are rejected without touching the session.
	rec = doJSON(t, h, http.MethodPatch, "/v1/sessions/s1/", "u1",
		`{"changes":{"workflow_phase":"DELIVERY"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/s1/", "u1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, domain.PhaseInitialization, state.Phase)
}

func TestDeleteSession(t *testing.T) {
	h := testServer(t)

	doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "u1", `{"message":"hi"}`)
	rec := doJSON(t, h, http.MethodDelete, "/v1/sessions/s1/", "u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/s1/", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowEndpoint(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodGet, "/v1/workflow", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Phases []domain.Phase    `json:"phases"`
		Nodes  []domain.NodeSpec `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Phases, 7)
	assert.Len(t, out.Nodes, 2)
}

func TestHealthAndMetrics(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")

	doJSON(t, h, http.MethodPost, "/v1/sessions/s1/turn", "u1", `{"message":"hi"}`)
	rec = doJSON(t, h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "parley_node_visits_total")
}
