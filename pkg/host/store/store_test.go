package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/host/store"
	"github.com/soundforge/soundforge/pkg/models"
)

func testAsset(id, name, path string) *store.StoredAsset {
	return &store.StoredAsset{
		Ref: models.AssetRef{ID: id, Name: name, Path: path},
		Document: &models.GraphDocument{
			Name:      name,
			AssetType: models.AssetTypePatch,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// Both backends must satisfy the same create-only contract, so run the
// shared assertions against each.
func eachStore(t *testing.T, run func(t *testing.T, s store.AssetStore)) {
	t.Helper()

	backends := map[string]func(t *testing.T) store.AssetStore{
		"memory": func(_ *testing.T) store.AssetStore {
			return store.NewMemoryStore()
		},
		"file": func(t *testing.T) store.AssetStore {
			return store.NewFileStore(t.TempDir())
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			s := build(t)
			defer s.Close(context.Background())

			run(t, s)
		})
	}
}

func TestPutAndGet(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.AssetStore) {
		ctx := context.Background()
		asset := testAsset("asset-1", "Pad", "/Game/Audio")

		require.NoError(t, s.Put(ctx, asset))

		got, err := s.Get(ctx, "/Game/Audio/Pad")
		require.NoError(t, err)
		assert.Equal(t, "asset-1", got.Ref.ID)
		assert.Equal(t, "Pad", got.Document.Name)
	})
}

func TestPutIsCreateOnly(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.AssetStore) {
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, testAsset("asset-1", "Pad", "/Game/Audio")))

		err := s.Put(ctx, testAsset("asset-2", "Pad", "/Game/Audio"))
		require.ErrorIs(t, err, store.ErrConflict)

		// The original write survives the losing attempt.
		got, err := s.Get(ctx, "/Game/Audio/Pad")
		require.NoError(t, err)
		assert.Equal(t, "asset-1", got.Ref.ID)
	})
}

func TestGetMissing(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.AssetStore) {
		_, err := s.Get(context.Background(), "/Game/Audio/Nothing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestListByPrefix(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.AssetStore) {
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, testAsset("a", "Pad", "/Game/Audio")))
		require.NoError(t, s.Put(ctx, testAsset("b", "Whoosh", "/Game/Audio")))
		require.NoError(t, s.Put(ctx, testAsset("c", "Click", "/Game/UI")))

		assets, err := s.List(ctx, "/Game/Audio")
		require.NoError(t, err)
		require.Len(t, assets, 2)

		// Ordered by location.
		assert.Equal(t, "Pad", assets[0].Ref.Name)
		assert.Equal(t, "Whoosh", assets[1].Ref.Name)

		all, err := s.List(ctx, "/")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestListEmptyRoot(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.AssetStore) {
		assets, err := s.List(context.Background(), "/Game")
		require.NoError(t, err)
		assert.Empty(t, assets)
	})
}

func TestMemoryStoreReturnsClones(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	require.NoError(t, s.Put(ctx, testAsset("asset-1", "Pad", "/Game/Audio")))

	got, err := s.Get(ctx, "/Game/Audio/Pad")
	require.NoError(t, err)

	got.Document.Name = "mutated"

	again, err := s.Get(ctx, "/Game/Audio/Pad")
	require.NoError(t, err)
	assert.Equal(t, "Pad", again.Document.Name)
}

func TestHealthCheck(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.AssetStore) {
		assert.NoError(t, s.HealthCheck(context.Background()))
	})
}
