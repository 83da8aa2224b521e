// Package mcp exposes the engine to MCP-speaking agent hosts. Each tool
// call maps onto one engine operation; session identity travels in the
// tool arguments because MCP has no transport-level auth of its own.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
)

// TurnResponse is the structured result of a send_message call.
type TurnResponse struct {
	Phase      domain.Phase            `json:"workflow_phase" jsonschema_description:"The phase the session is in after the turn"`
	CanAdvance bool                    `json:"can_advance" jsonschema_description:"Whether the current phase has collected all required data"`
	Messages   []domain.Message        `json:"messages" jsonschema_description:"Messages produced during this turn"`
	Err        *domain.StructuredError `json:"error,omitempty" jsonschema_description:"Structured error when the turn failed"`
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    *parley.Engine
	mcpServer *server.MCPServer
}

// NewServer creates the MCP boundary for an engine.
func NewServer(engine *parley.Engine) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("parley-mcp", parley.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	// TOOL: send_message
	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a user message to a workflow session and run one orchestration turn. Creates the session on first contact."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session ID")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the user who owns the session")),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's message, or a global command (restart, go_back, help, debug)")),
		mcp.WithOutputSchema[TurnResponse](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendMessage))

	// TOOL: inspect_session
	s.mcpServer.AddTool(mcp.NewTool("inspect_session",
		mcp.WithDescription("Read the full workflow state of a session, including phase completion and the audit trail."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session ID")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the user who owns the session")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := request.GetString("session_id", "")
		userID := request.GetString("user_id", "")
		view, err := s.engine.SessionState(ctx, sessionID, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(view.State())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: update_session
	s.mcpServer.AddTool(mcp.NewTool("update_session",
		mcp.WithDescription("Apply an external update to a session's updatable fields. The update passes through the compliance hook and is rejected wholesale on any violation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session ID")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the user who owns the session")),
		mcp.WithString("actor", mcp.Description("Name recorded in the audit trail (defaults to the user ID)")),
		mcp.WithString("changes", mcp.Required(), mcp.Description("JSON object of field changes, e.g. {\"context_data\":{...}}")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := request.GetString("session_id", "")
		userID := request.GetString("user_id", "")
		actor := request.GetString("actor", userID)

		var changes map[string]any
		if err := json.Unmarshal([]byte(request.GetString("changes", "{}")), &changes); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid changes payload: %v", err)), nil
		}

		updated, err := s.engine.UpdateSession(ctx, sessionID, userID, actor, changes)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("update rejected: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(updated)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: get_workflow
	s.mcpServer.AddTool(mcp.NewTool("get_workflow",
		mcp.WithDescription("Get the declared workflow nodes and the phase lifecycle for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(map[string]any{
			"phases": domain.Phases(),
			"nodes":  s.engine.Inspect(),
		})
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	sessionID, _ := args["session_id"].(string)
	userID, _ := args["user_id"].(string)
	message, _ := args["message"].(string)

	res, err := s.engine.Turn(ctx, domain.TurnRequest{
		SessionID: sessionID,
		UserID:    userID,
		Message:   message,
	})
	if err != nil && res == nil {
		return TurnResponse{}, fmt.Errorf("turn failed: %w", err)
	}

	return TurnResponse{
		Phase:      res.Phase,
		CanAdvance: res.CanAdvance,
		Messages:   res.Messages,
		Err:        res.Err,
	}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: parley://workflow
	s.mcpServer.AddResource(mcp.NewResource("parley://workflow", "Declared Workflow",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(map[string]any{
			"phases": domain.Phases(),
			"nodes":  s.engine.Inspect(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal workflow: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "parley://workflow",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
