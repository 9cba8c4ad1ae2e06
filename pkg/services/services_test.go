package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/audition"
	"github.com/soundforge/soundforge/pkg/builder"
	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/host"
	"github.com/soundforge/soundforge/pkg/host/dedup"
	"github.com/soundforge/soundforge/pkg/host/store"
	"github.com/soundforge/soundforge/pkg/materializer"
	"github.com/soundforge/soundforge/pkg/models"
	"github.com/soundforge/soundforge/pkg/services"
)

type testStack struct {
	host      *host.Host
	catalog   *catalog.StaticCatalog
	sessions  *services.Sessions
	graph     *services.Graph
	authoring *services.Authoring
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	cat := catalog.NewStaticCatalog()
	cat.RegisterBuiltinNodes()

	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil)
	sessions := services.NewSessions(cat, h, mat, nil)
	graph := services.NewGraph(sessions, nil, nil)
	aud := audition.NewController(h, nil)
	authoring := services.NewAuthoring(sessions, mat, aud, nil, nil)

	return &testStack{
		host:      h,
		catalog:   cat,
		sessions:  sessions,
		graph:     graph,
		authoring: authoring,
	}
}

func TestSessions_OpenAndClose(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	session, err := stack.sessions.Open(ctx, "pad", models.AssetTypePatch)
	require.NoError(t, err)
	assert.Equal(t, models.AssetTypePatch, session.Snapshot().AssetType)

	_, err = stack.sessions.Open(ctx, "pad", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrSessionNameTaken)
	assert.True(t, services.IsConflictError(err))

	_, err = stack.sessions.Open(ctx, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrSessionNameRequired)
	assert.True(t, services.IsValidationError(err))

	infos := stack.sessions.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "pad", infos[0].Name)

	require.NoError(t, stack.sessions.Close(ctx, "pad"))
	assert.Empty(t, stack.sessions.List())

	err = stack.sessions.Close(ctx, "pad")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
	assert.True(t, services.IsNotFoundError(err))
}

func TestGraph_NodeAndConnectionFlow(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	_, err := stack.sessions.Open(ctx, "pad", "")
	require.NoError(t, err)

	oscID, err := stack.graph.AddNode(ctx, "pad", "sf.Sine@v1")
	require.NoError(t, err)
	ampID, err := stack.graph.AddNode(ctx, "pad", "sf.Multiply:Audio@v1")
	require.NoError(t, err)

	// Node IDs are the document IDs, usable in endpoints.
	require.NoError(t, stack.graph.Connect(ctx, "pad", oscID+":Audio", ampID+":A"))

	doc, err := stack.graph.Snapshot(ctx, "pad")
	require.NoError(t, err)
	require.Len(t, doc.Connections, 1)
	assert.Equal(t, oscID, doc.Connections[0].From.NodeID)

	err = stack.graph.Connect(ctx, "pad", oscID+":Audio", ampID+":A")
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))

	require.NoError(t, stack.graph.Disconnect(ctx, "pad", oscID+":Audio", ampID+":A"))

	// Unknown node type and malformed endpoints are validation errors.
	_, err = stack.graph.AddNode(ctx, "pad", "sf.Nope@v1")
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	err = stack.graph.Connect(ctx, "pad", "no-colon", ampID+":A")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrInvalidEndpoint)
	assert.True(t, services.IsValidationError(err))

	// Removing a connected node needs cascade.
	require.NoError(t, stack.graph.Connect(ctx, "pad", oscID+":Audio", ampID+":B"))

	err = stack.graph.RemoveNode(ctx, "pad", oscID, false)
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))

	require.NoError(t, stack.graph.RemoveNode(ctx, "pad", oscID, true))

	err = stack.graph.RemoveNode(ctx, "pad", oscID, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrNodeNotFound)
}

func TestGraph_DefaultsAndGraphIO(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	_, err := stack.sessions.Open(ctx, "pad", "")
	require.NoError(t, err)

	oscID, err := stack.graph.AddNode(ctx, "pad", "sf.Sine@v1")
	require.NoError(t, err)

	require.NoError(t, stack.graph.SetDefault(ctx, "pad", oscID+":Frequency", models.FloatLiteral(220)))

	lit, err := stack.graph.GetDefault(ctx, "pad", oscID+":Frequency")
	require.NoError(t, err)
	require.NotNil(t, lit)
	assert.InEpsilon(t, 220.0, lit.Float, 1e-9)

	err = stack.graph.SetDefault(ctx, "pad", oscID+":Frequency", models.StringLiteral("no"))
	require.Error(t, err)
	assert.True(t, services.IsUnprocessableError(err))

	require.NoError(t, stack.graph.DeclareInput(ctx, "pad", "Pitch", models.DataTypeFloat, nil))
	require.NoError(t, stack.graph.DeclareOutput(ctx, "pad", "Out", models.DataTypeAudio, nil))

	require.NoError(t, stack.graph.Connect(ctx, "pad", "__graph__:Pitch", oscID+":Frequency"))
	require.NoError(t, stack.graph.Connect(ctx, "pad", oscID+":Audio", "__graph__:Out"))

	require.NoError(t, stack.graph.RemoveInput(ctx, "pad", "Pitch"))

	doc, err := stack.graph.Snapshot(ctx, "pad")
	require.NoError(t, err)
	assert.Empty(t, doc.Inputs)
	assert.Len(t, doc.Connections, 1)
}

func TestAuthoring_TransientFlow(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	_, err := stack.sessions.Open(ctx, "pad", "")
	require.NoError(t, err)

	_, err = stack.graph.AddNode(ctx, "pad", "sf.Sine@v1")
	require.NoError(t, err)

	err = stack.authoring.OverwriteTransient(ctx, "pad", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrNotATransientInstance)
	assert.True(t, services.IsConflictError(err))

	ref, err := stack.authoring.BuildTransient(ctx, "pad", "preview")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)

	require.NoError(t, stack.authoring.OverwriteTransient(ctx, "pad", true))

	rev, ok := stack.host.InstanceRevision(ref.ID)
	require.True(t, ok)
	assert.Equal(t, 2, rev)
}

func TestAuthoring_BuildToAssetAndReopen(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	_, err := stack.sessions.Open(ctx, "pad", "")
	require.NoError(t, err)
	_, err = stack.graph.AddNode(ctx, "pad", "sf.Sine@v1")
	require.NoError(t, err)

	ref, err := stack.authoring.BuildToAsset(ctx, "pad", materializer.BuildRequest{
		AuthorTag:   "sound-team",
		AssetName:   "Pad",
		StoragePath: "/pads",
	})
	require.NoError(t, err)

	session, err := stack.sessions.Get("pad")
	require.NoError(t, err)
	assert.Equal(t, builder.StatePersisted, session.State())

	// Same location again is a conflict surfaced through the service.
	_, err = stack.authoring.BuildToAsset(ctx, "pad", materializer.BuildRequest{
		AssetName:   "Pad",
		StoragePath: "/pads",
	})
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))

	reopened, err := stack.sessions.OpenFromAsset(ctx, "pad-2", ref)
	require.NoError(t, err)
	assert.True(t, reopened.Snapshot().StructurallyEqual(session.Snapshot()))
	assert.Equal(t, ref, reopened.SourceAsset())

	// Reopening into a taken name fails without touching the registry.
	_, err = stack.sessions.OpenFromAsset(ctx, "pad", ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrSessionNameTaken)

	// Reopening a missing asset rolls the name reservation back.
	_, err = stack.sessions.OpenFromAsset(ctx, "pad-3", models.AssetRef{ID: "x", Name: "Gone", Path: "/pads"})
	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))

	_, err = stack.sessions.OpenFromAsset(ctx, "pad-3", ref)
	require.NoError(t, err)
}

func TestAuthoring_AuditionFlow(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	_, err := stack.sessions.Open(ctx, "pad", "")
	require.NoError(t, err)
	_, err = stack.graph.AddNode(ctx, "pad", "sf.Sine@v1")
	require.NoError(t, err)

	// StartAudition builds a transient instance when none exists yet.
	playback, err := stack.authoring.StartAudition(ctx, "pad")
	require.NoError(t, err)
	assert.True(t, stack.authoring.Auditioning("pad"))

	running, ok := stack.host.SinkRunning(playback.Sink.ID)
	require.True(t, ok)
	assert.True(t, running)

	// Live updates flow once auditioning: edits reach the instance.
	bridge, err := stack.sessions.Bridge("pad")
	require.NoError(t, err)
	assert.True(t, bridge.Enabled())

	_, err = stack.graph.AddNode(ctx, "pad", "sf.Delay@v1")
	require.NoError(t, err)

	doc, ok := stack.host.InstanceDocument(playback.Instance.ID)
	require.True(t, ok)
	assert.Len(t, doc.Nodes, 2)

	require.NoError(t, stack.authoring.StopAudition(ctx, "pad"))
	assert.False(t, stack.authoring.Auditioning("pad"))
	assert.False(t, bridge.Enabled())

	err = stack.authoring.StopAudition(ctx, "pad")
	require.Error(t, err)

	// Crossfade only applies to open sessions.
	require.NoError(t, stack.authoring.SetCrossfade("pad", 50*time.Millisecond))

	err = stack.authoring.SetCrossfade("ghost", 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
}

func TestSessions_IdleReaper(t *testing.T) {
	ctx := context.Background()

	cat := catalog.NewStaticCatalog()
	cat.RegisterBuiltinNodes()

	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	mat := materializer.New(h, cat, nil)
	sessions := services.NewSessions(cat, h, mat, nil, services.WithIdleTTL(time.Nanosecond))

	_, err := sessions.Open(ctx, "stale", "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	sessions.ReapIdleNow(ctx)

	assert.Empty(t, sessions.List())
}
