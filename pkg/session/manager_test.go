package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LoadOrStart_New(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewCache(nil))

	state, err := manager.LoadOrStart(ctx, "fresh", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInitialization, state.Phase)
	assert.Equal(t, "user-1", state.UserID)

	// The ID is reserved immediately.
	again, err := manager.LoadOrStart(ctx, "fresh", "user-1")
	require.NoError(t, err)
	assert.Equal(t, state.SessionID, again.SessionID)
}

func TestManager_LoadOrStart_OwnershipMismatch(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewCache(nil))

	_, err := manager.LoadOrStart(ctx, "owned", "alice")
	require.NoError(t, err)

	_, err = manager.LoadOrStart(ctx, "owned", "mallory")
	var oe *domain.OwnershipError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "alice", oe.Owner)
	assert.Equal(t, "mallory", oe.Caller)
}

func TestManager_WithLock_Serializes(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewCache(nil))

	var inside int
	var maxInside int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.WithLock(ctx, "same-session", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "same-session work must be serialized")
}

func TestManager_DifferentSessionsRunConcurrently(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewCache(nil))

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = manager.WithLock(ctx, id, func(ctx context.Context) error {
				time.Sleep(20 * time.Millisecond)
				return nil
			})
		}(id)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 60*time.Millisecond,
		"independent sessions should not queue behind each other")
}

func TestManager_SaveAndDelete(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewCache(nil))

	state := domain.NewWorkflowState("s1", "u1")
	state.Phase = domain.PhaseDiscovery
	require.NoError(t, manager.Save(ctx, "s1", state))

	loaded, err := manager.LoadOrStart(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDiscovery, loaded.Phase)

	require.NoError(t, manager.Delete(ctx, "s1"))
	fresh, err := manager.LoadOrStart(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInitialization, fresh.Phase)
}
