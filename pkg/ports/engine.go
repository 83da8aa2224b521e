package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Engine is the caller-facing boundary of the orchestration core. The
// caller is pre-authenticated; the engine still enforces that the user ID
// matches the session owner.
type Engine interface {
	// Turn runs one conversational turn: global commands, routing, node
	// execution, persistence. Fatal errors are returned alongside the
	// last valid state.
	Turn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error)

	// Inspect returns the declared node metadata for introspection.
	Inspect() []domain.NodeSpec
}
