package materializer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/builder"
	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/host"
	"github.com/soundforge/soundforge/pkg/host/dedup"
	"github.com/soundforge/soundforge/pkg/host/store"
	"github.com/soundforge/soundforge/pkg/materializer"
	"github.com/soundforge/soundforge/pkg/models"
)

var sineType = models.NodeTypeID{Namespace: "sf", Name: "Sine", MajorVersion: 1}

func newTestCatalog() *catalog.StaticCatalog {
	cat := catalog.NewStaticCatalog()
	cat.RegisterBuiltinNodes()

	return cat
}

// flakyGateway wraps the in-process host and fails BuildToAsset with
// ErrUnavailable a configurable number of times AFTER the host has already
// processed the request, simulating a lost response.
type flakyGateway struct {
	gateway.Gateway
	dropResponses int
	tokens        []string
}

func (g *flakyGateway) BuildToAsset(ctx context.Context, snapshot *models.GraphDocument, req gateway.BuildAssetRequest) (models.AssetRef, error) {
	g.tokens = append(g.tokens, req.IdempotencyToken)

	ref, err := g.Gateway.BuildToAsset(ctx, snapshot, req)
	if err != nil {
		return models.AssetRef{}, err
	}

	if g.dropResponses > 0 {
		g.dropResponses--

		return models.AssetRef{}, fmt.Errorf("%w: connection reset", gateway.ErrUnavailable)
	}

	return ref, nil
}

func newSessionWithNode(t *testing.T, cat catalog.Catalog) *builder.Session {
	t.Helper()

	session := builder.NewSession(t.Name(), cat, nil)

	_, err := session.AddNode(context.Background(), sineType)
	require.NoError(t, err)

	return session
}

func TestMaterializer_BuildTransient(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil)

	session := newSessionWithNode(t, cat)

	ref, err := mat.BuildTransient(ctx, session, "preview")
	require.NoError(t, err)
	assert.Equal(t, ref, session.TransientRef())
	assert.Equal(t, builder.StateHasTransient, session.State())

	doc, ok := h.InstanceDocument(ref.ID)
	require.True(t, ok)
	assert.True(t, doc.StructurallyEqual(session.Snapshot()))
}

func TestMaterializer_OverwriteTransient_RequiresInstance(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil)

	session := newSessionWithNode(t, cat)

	err := mat.OverwriteTransient(ctx, session, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrNotATransientInstance)

	_, err = mat.BuildTransient(ctx, session, "preview")
	require.NoError(t, err)
	require.NoError(t, mat.OverwriteTransient(ctx, session, true))
}

func TestMaterializer_BuildToAsset(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil)

	session := newSessionWithNode(t, cat)

	ref, err := mat.BuildToAsset(ctx, session, materializer.BuildRequest{
		AuthorTag:   "sound-team",
		AssetName:   "Whoosh",
		StoragePath: "/sfx",
	})
	require.NoError(t, err)
	assert.Equal(t, builder.StatePersisted, session.State())
	assert.Equal(t, ref, session.PersistedRef())

	// Session stays editable after persisting.
	_, err = session.AddNode(ctx, sineType)
	require.NoError(t, err)
}

func TestMaterializer_BuildToAsset_RetryReusesToken(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	flaky := &flakyGateway{Gateway: h, dropResponses: 1}
	mat := materializer.New(flaky, cat, nil)

	session := newSessionWithNode(t, cat)

	req := materializer.BuildRequest{
		AuthorTag:   "sound-team",
		AssetName:   "Whoosh",
		StoragePath: "/sfx",
	}

	// First attempt lands on the host but the response is lost.
	_, err := mat.BuildToAsset(ctx, session, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.NotEqual(t, builder.StatePersisted, session.State())

	// The retry must carry the same token and replay the original success
	// instead of hitting a storage conflict.
	ref, err := mat.BuildToAsset(ctx, session, req)
	require.NoError(t, err)
	assert.Equal(t, builder.StatePersisted, session.State())
	assert.Equal(t, "Whoosh", ref.Name)

	require.Len(t, flaky.tokens, 2)
	assert.Equal(t, flaky.tokens[0], flaky.tokens[1])

	// A deliberate rebuild to the same location gets a fresh token and a
	// real conflict.
	_, err = mat.BuildToAsset(ctx, session, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrStorageConflict)
	require.Len(t, flaky.tokens, 3)
	assert.NotEqual(t, flaky.tokens[1], flaky.tokens[2])
}

func TestMaterializer_BuildToAsset_ConflictClearsToken(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	flaky := &flakyGateway{Gateway: h}
	mat := materializer.New(flaky, cat, nil)

	occupant := newSessionWithNode(t, cat)
	req := materializer.BuildRequest{AssetName: "Taken", StoragePath: "/sfx"}

	_, err := mat.BuildToAsset(ctx, occupant, req)
	require.NoError(t, err)

	session := builder.NewSession("second", cat, nil)
	_, err = session.AddNode(ctx, sineType)
	require.NoError(t, err)

	// Two consecutive conflicts use distinct tokens: a definite failure
	// does not park a token for reuse.
	_, err = mat.BuildToAsset(ctx, session, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrStorageConflict)

	_, err = mat.BuildToAsset(ctx, session, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrStorageConflict)

	require.Len(t, flaky.tokens, 3)
	assert.NotEqual(t, flaky.tokens[1], flaky.tokens[2])
}

func TestMaterializer_PathValidation(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil, materializer.WithPathRoot("/Game"))

	session := newSessionWithNode(t, cat)

	tests := []struct {
		name string
		path string
	}{
		{name: "relative", path: "sfx"},
		{name: "parent traversal", path: "/Game/../etc"},
		{name: "outside root", path: "/Engine/sfx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mat.BuildToAsset(ctx, session, materializer.BuildRequest{
				AssetName:   "Whoosh",
				StoragePath: tt.path,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, materializer.ErrInvalidStoragePath)
		})
	}

	_, err := mat.BuildToAsset(ctx, session, materializer.BuildRequest{
		AssetName:   "Whoosh",
		StoragePath: "/Game/sfx",
	})
	require.NoError(t, err)
}

func TestMaterializer_ReopenForEditing(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil)

	original := newSessionWithNode(t, cat)

	ref, err := mat.BuildToAsset(ctx, original, materializer.BuildRequest{
		AssetName:   "Whoosh",
		StoragePath: "/sfx",
	})
	require.NoError(t, err)

	reopened, err := mat.ReopenForEditing(ctx, "reopened", ref)
	require.NoError(t, err)
	assert.Equal(t, builder.StateDirty, reopened.State())
	assert.Equal(t, models.TransientRef{}, reopened.TransientRef())
	assert.Equal(t, ref, reopened.SourceAsset())
	assert.True(t, reopened.Snapshot().StructurallyEqual(original.Snapshot()))

	_, err = mat.ReopenForEditing(ctx, "missing", models.AssetRef{ID: "x", Name: "Nope", Path: "/sfx"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrAssetNotFound)
}

func TestMaterializer_BuildTransient_DefaultsNameHint(t *testing.T) {
	ctx := context.Background()
	cat := newTestCatalog()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil)

	session := newSessionWithNode(t, cat)

	start := time.Now()

	ref, err := mat.BuildTransient(ctx, session, "")
	require.NoError(t, err)
	assert.Equal(t, session.Snapshot().Name, ref.Name)
	assert.False(t, session.LastActivity().Before(start))
}
