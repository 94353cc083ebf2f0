package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/datum/pkg/adapters/redis"
	"github.com/aretw0/datum/pkg/script"
)

func newTestStore(t *testing.T) *redis.RegistryStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegistryStore_SaveAndLoadAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta := script.Metadata{
		Name:        "rename_views",
		Path:        "rename_views.lua",
		Description: "Renames views by pattern",
		Parameters:  []string{"pattern"},
		UsageCount:  3,
		LastUsed:    time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveMetadata(ctx, meta))
	require.NoError(t, store.SaveMetadata(ctx, script.Metadata{Name: "other"}))

	metas, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)

	byName := map[string]script.Metadata{}
	for _, m := range metas {
		byName[m.Name] = m
	}
	assert.Equal(t, meta, byName["rename_views"])
}

func TestRegistryStore_SaveOverwritesAndKeepsIndexUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetadata(ctx, script.Metadata{Name: "s", UsageCount: 1}))
	require.NoError(t, store.SaveMetadata(ctx, script.Metadata{Name: "s", UsageCount: 2}))

	metas, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, 2, metas[0].UsageCount)
}

func TestRegistryStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetadata(ctx, script.Metadata{Name: "gone"}))
	require.NoError(t, store.Delete(ctx, "gone"))

	metas, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestRegistryStore_FeedsRegistryLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMetadata(ctx, script.Metadata{Name: "persisted", UsageCount: 7}))

	reg := script.NewRegistry(script.WithRegistryStore(store))
	require.NoError(t, reg.Load(ctx))

	meta, err := reg.Metadata("persisted")
	require.NoError(t, err)
	assert.Equal(t, 7, meta.UsageCount)
	assert.False(t, reg.Registered("persisted"), "metadata-only entries are not runnable")
}
