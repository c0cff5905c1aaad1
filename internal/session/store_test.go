package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetOrCreate_ReturnsSameSessionOnRepeat(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, "sess-1")
	require.NoError(t, err)

	second, err := store.GetOrCreate(ctx, "sess-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestMemoryStore_Mutate_PersistsStateChange(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	err := store.Mutate(ctx, "sess-1", func(s *Session) error {
		s.State = s.State.WithModel("gpt-4o")
		return nil
	})
	require.NoError(t, err)

	sess, ok, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", sess.State.BackendConfig.Model)
}

func TestMemoryStore_Delete_RemovesSession(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "sess-1")

	deleted, err := store.Delete(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Delete_UnknownSessionReturnsFalse(t *testing.T) {
	store := NewMemoryStore(0)
	deleted, err := store.Delete(context.Background(), "never-existed")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStore_ConcurrentMutateSameSessionSerializes(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "sess-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Mutate(ctx, "sess-1", func(s *Session) error {
				s.State = s.State.WithToolLoopMaxRepeats(n)
				return nil
			})
		}(i)
	}
	wg.Wait()

	sess, ok, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, sess.State.LoopConfig.ToolLoopMaxRepeats, 0)
}

func TestNewDefaultState_AppliedToFreshSession(t *testing.T) {
	store := NewMemoryStore(0)
	sess, err := store.GetOrCreate(context.Background(), "sess-new")
	require.NoError(t, err)
	assert.Equal(t, NewDefaultState(), sess.State)
}
