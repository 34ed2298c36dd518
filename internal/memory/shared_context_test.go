package memory

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/circuitbreaker"
)

func TestSharedContextAccessControl(t *testing.T) {
	s := newCacheOnlyStore(t)
	ctx := context.Background()

	created, err := s.CreateSharedContext(ctx, "c1", map[string]any{"k": 1}, []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)

	// Caller outside the allow-list gets nil, not an error.
	denied, err := s.GetSharedContext(ctx, "c1", "a2")
	require.NoError(t, err)
	assert.Nil(t, denied)

	allowed, err := s.GetSharedContext(ctx, "c1", "a1")
	require.NoError(t, err)
	require.NotNil(t, allowed)
	assert.Equal(t, 1, allowed.Data["k"])
	assert.Equal(t, 1, allowed.Version)

	updated, err := s.UpdateSharedContext(ctx, "c1", map[string]any{"k": 2}, "a1")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 2, updated.Data["k"])

	deniedUpdate, err := s.UpdateSharedContext(ctx, "c1", map[string]any{"k": 3}, "a2")
	require.NoError(t, err)
	assert.Nil(t, deniedUpdate)

	// Denied update left the data untouched.
	after, err := s.GetSharedContext(ctx, "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, after.Data["k"])
}

func TestSharedContextEmptyAllowListMeansAll(t *testing.T) {
	s := newCacheOnlyStore(t)
	ctx := context.Background()

	_, err := s.CreateSharedContext(ctx, "open", map[string]any{"k": "v"}, nil)
	require.NoError(t, err)

	got, err := s.GetSharedContext(ctx, "open", "anyone")
	require.NoError(t, err)
	require.NotNil(t, got)

	updated, err := s.UpdateSharedContext(ctx, "open", map[string]any{"k2": "v2"}, "anyone-else")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 2, updated.Version)
}

func TestCreateSharedContextRejectsDuplicate(t *testing.T) {
	s := newCacheOnlyStore(t)
	ctx := context.Background()

	_, err := s.CreateSharedContext(ctx, "dup", nil, nil)
	require.NoError(t, err)

	_, err = s.CreateSharedContext(ctx, "dup", nil, nil)
	assert.ErrorIs(t, err, ErrContextExists)
}

func TestSharedContextVersionAndHistory(t *testing.T) {
	s := newCacheOnlyStore(t)
	ctx := context.Background()

	_, err := s.CreateSharedContext(ctx, "c", map[string]any{}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		updated, err := s.UpdateSharedContext(ctx, "c",
			map[string]any{"step": i}, "agent")
		require.NoError(t, err)
		// Every mutation bumps the version exactly once.
		assert.Equal(t, i+2, updated.Version)
		assert.Len(t, updated.ModificationHistory, i+1)
	}

	got, err := s.GetSharedContext(ctx, "c", "agent")
	require.NoError(t, err)
	last := got.ModificationHistory[len(got.ModificationHistory)-1]
	assert.Equal(t, "agent", last.AgentID)
	assert.Equal(t, 4, last.NewVersion)
	assert.Equal(t, 2, last.Changes["step"])
}

func TestSharedContextHistoryIsCapped(t *testing.T) {
	s := newCacheOnlyStore(t)
	ctx := context.Background()

	_, err := s.CreateSharedContext(ctx, "c", nil, nil)
	require.NoError(t, err)

	for i := 0; i < maxContextHistory+20; i++ {
		_, err := s.UpdateSharedContext(ctx, "c",
			map[string]any{"i": i}, "agent")
		require.NoError(t, err)
	}

	got, err := s.GetSharedContext(ctx, "c", "agent")
	require.NoError(t, err)
	require.Len(t, got.ModificationHistory, maxContextHistory)
	// Oldest evicted; the newest record survives.
	newest := got.ModificationHistory[maxContextHistory-1]
	assert.Equal(t, maxContextHistory+19, newest.Changes["i"])
	assert.Equal(t, got.Version, newest.NewVersion)
}

func TestSharedContextUpdateEvent(t *testing.T) {
	s := newCacheOnlyStore(t)
	ctx := context.Background()

	events := make(chan Event, 1)
	s.AddEventListener(EventSharedContextUpdated, func(ev Event) { events <- ev })

	_, err := s.CreateSharedContext(ctx, "c", nil, nil)
	require.NoError(t, err)
	_, err = s.UpdateSharedContext(ctx, "c", map[string]any{"k": "v"}, "a1")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "c", ev.Payload["context_id"])
		assert.Equal(t, "a1", ev.Payload["agent_id"])
		assert.Equal(t, 2, ev.Payload["version"])
	case <-time.After(time.Second):
		t.Fatal("expected shared_context_updated event")
	}
}

func TestSharedContextRehydratesFromPeer(t *testing.T) {
	s, mr := newPeeredStore(t)
	ctx := context.Background()

	_, err := s.CreateSharedContext(ctx, "c", map[string]any{"k": "v"}, []string{"a1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return mr.Exists("shared_context_c")
	}, time.Second, 5*time.Millisecond)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	peer := circuitbreaker.NewPeerWrapper(client, zap.NewNop())
	fresh := NewStore(testMemoryConfig(), peer, zap.NewNop())
	t.Cleanup(func() {
		fresh.Close()
		_ = peer.Close()
	})

	// The allow-list survives the round trip.
	denied, err := fresh.GetSharedContext(ctx, "c", "intruder")
	require.NoError(t, err)
	assert.Nil(t, denied)

	got, err := fresh.GetSharedContext(ctx, "c", "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v", got.Data["k"])
	assert.Equal(t, 1, got.Version)
}
