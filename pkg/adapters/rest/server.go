// Package rest exposes the engine over HTTP for pre-authenticated
// callers. The caller identity arrives in the X-User-ID header; routing,
// phase gating, and ownership checks all happen in the engine.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

const userHeader = "X-User-ID"

// Server routes HTTP traffic to an engine.
type Server struct {
	engine *parley.Engine
	logger *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer builds the HTTP boundary for an engine.
func NewServer(engine *parley.Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.engine.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/workflow", s.handleWorkflow)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/turn", s.handleTurn)
			r.Get("/", s.handleGetSession)
			r.Patch("/", s.handleUpdateSession)
			r.Delete("/", s.handleDeleteSession)
		})
	})
	return r
}

type turnBody struct {
	Message string `json:"message"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		s.writeError(w, http.StatusUnauthorized, &domain.StructuredError{
			Kind: "unauthenticated", Message: "missing " + userHeader + " header",
		})
		return
	}

	var body turnBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, &domain.StructuredError{
			Kind: "bad_request", Message: "invalid request body",
		})
		return
	}

	res, err := s.engine.Turn(r.Context(), domain.TurnRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		UserID:    userID,
		Message:   body.Message,
	})
	if err != nil {
		if res != nil && res.Err != nil {
			// Fatal orchestration outcomes still carry the last valid
			// state; surface both.
			s.writeJSON(w, statusFor(err), res)
			return
		}
		s.writeError(w, statusFor(err), domain.Structure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	view, err := s.engine.SessionState(r.Context(), chi.URLParam(r, "sessionID"), userID)
	if err != nil {
		s.writeError(w, statusFor(err), domain.Structure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, view.State())
}

type updateBody struct {
	Actor   string         `json:"actor"`
	Changes map[string]any `json:"changes"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)

	var body updateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, &domain.StructuredError{
			Kind: "bad_request", Message: "invalid request body",
		})
		return
	}
	if body.Actor == "" {
		body.Actor = userID
	}

	updated, err := s.engine.UpdateSession(r.Context(), chi.URLParam(r, "sessionID"), userID, body.Actor, body.Changes)
	if err != nil {
		s.writeError(w, statusFor(err), domain.Structure(err))
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, statusFor(err), domain.Structure(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"phases": domain.Phases(),
		"nodes":  s.engine.Inspect(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Sessions().Cache().HealthCheck(r.Context()); err != nil {
		// Degraded is still serving; sessions fall back to memory.
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "degraded"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, serr *domain.StructuredError) {
	s.writeJSON(w, status, map[string]any{"error": serr})
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrSessionNotFound) {
		return http.StatusNotFound
	}
	var classified domain.Classified
	if !errors.As(err, &classified) {
		return http.StatusInternalServerError
	}
	switch classified.Kind() {
	case "ownership_mismatch":
		return http.StatusForbidden
	case "compliance_violation":
		return http.StatusUnprocessableEntity
	case "loop_detected", "recursion_budget_exceeded":
		return http.StatusConflict
	case "node_timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
