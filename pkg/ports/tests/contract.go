package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCacheStoreContract verifies that a CacheStore implementation honors
// the shared behavioral contract. Every adapter runs this same suite.
func RunCacheStoreContract(t *testing.T, store ports.CacheStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Retrieve_Missing", func(t *testing.T) {
		_, err := store.Retrieve(ctx, "contract-missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Store_Retrieve_RoundTrip", func(t *testing.T) {
		state := domain.NewWorkflowState("contract-rt", "user-1")
		state.ContextData["topic"] = "pricing"
		state.AppendMessage("user", "hello", time.Now().UTC())
		state.AppendAudit("collect_objective", domain.AuditNodeExecuted,
			[]string{domain.FieldContextData}, time.Now().UTC())

		require.NoError(t, store.Store(ctx, "contract-rt", state))

		loaded, err := store.Retrieve(ctx, "contract-rt")
		require.NoError(t, err)
		assert.Equal(t, state.SessionID, loaded.SessionID)
		assert.Equal(t, state.Phase, loaded.Phase)
		assert.Equal(t, "pricing", loaded.ContextData["topic"])
		assert.Len(t, loaded.AuditTrail, 1)
	})

	t.Run("Store_Idempotent_Upsert", func(t *testing.T) {
		state := domain.NewWorkflowState("contract-upsert", "user-1")
		require.NoError(t, store.Store(ctx, "contract-upsert", state))

		state.Phase = domain.PhaseDiscovery
		require.NoError(t, store.Store(ctx, "contract-upsert", state))

		loaded, err := store.Retrieve(ctx, "contract-upsert")
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseDiscovery, loaded.Phase)
	})

	t.Run("Retrieve_Isolated", func(t *testing.T) {
		state := domain.NewWorkflowState("contract-iso", "user-1")
		state.ContextData["k"] = "v"
		require.NoError(t, store.Store(ctx, "contract-iso", state))

		first, err := store.Retrieve(ctx, "contract-iso")
		require.NoError(t, err)
		first.ContextData["k"] = "mutated"

		second, err := store.Retrieve(ctx, "contract-iso")
		require.NoError(t, err)
		assert.Equal(t, "v", second.ContextData["k"],
			"a caller mutating its copy must not affect the store")
	})

	t.Run("Delete", func(t *testing.T) {
		state := domain.NewWorkflowState("contract-del", "user-1")
		require.NoError(t, store.Store(ctx, "contract-del", state))
		require.NoError(t, store.Delete(ctx, "contract-del"))

		_, err := store.Retrieve(ctx, "contract-del")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
