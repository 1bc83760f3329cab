package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "op-1", `{"reason":"timeout"}`, 0))

	value, err := store.Get(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, `{"reason":"timeout"}`, value)
}

func TestMemoryStoreMissingKeyIsEmpty(t *testing.T) {
	store := NewMemoryStateStore()

	value, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "op-2", "state", 20*time.Millisecond))

	value, err := store.Get(ctx, "op-2")
	require.NoError(t, err)
	assert.Equal(t, "state", value)

	time.Sleep(40 * time.Millisecond)

	value, err = store.Get(ctx, "op-2")
	require.NoError(t, err)
	assert.Empty(t, value, "expired state should read as missing")
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "op-3", "state", 0))
	require.NoError(t, store.Delete(ctx, "op-3"))

	exists, err := store.Exists(ctx, "op-3")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreExists(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	exists, err := store.Exists(ctx, "op-4")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Set(ctx, "op-4", "state", 0))

	exists, err = store.Exists(ctx, "op-4")
	require.NoError(t, err)
	assert.True(t, exists)
}
