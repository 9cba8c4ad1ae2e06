package liveupdate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/host"
	"github.com/soundforge/soundforge/pkg/host/dedup"
	"github.com/soundforge/soundforge/pkg/host/store"
	"github.com/soundforge/soundforge/pkg/liveupdate"
	"github.com/soundforge/soundforge/pkg/models"
)

type updateCall struct {
	target    models.TransientRef
	doc       *models.GraphDocument
	crossfade time.Duration
}

// recordingGateway records UpdateLive calls and can fail on demand.
type recordingGateway struct {
	gateway.Gateway
	calls []updateCall
	err   error
}

func (g *recordingGateway) UpdateLive(_ context.Context, ref models.TransientRef, doc *models.GraphDocument, crossfade time.Duration) error {
	if g.err != nil {
		return g.err
	}

	g.calls = append(g.calls, updateCall{target: ref, doc: doc, crossfade: crossfade})

	return nil
}

func testDoc(name string) *models.GraphDocument {
	return &models.GraphDocument{Name: name, AssetType: models.AssetTypeSource}
}

func TestBridge_HoldsSnapshotsWhileDisabled(t *testing.T) {
	ctx := context.Background()
	gw := &recordingGateway{}
	bridge := liveupdate.NewBridge(gw, "session", nil)
	bridge.SetTarget(models.TransientRef{ID: "inst-1", Name: "preview"})

	require.NoError(t, bridge.Mirror(ctx, testDoc("v1"), 1))
	require.NoError(t, bridge.Mirror(ctx, testDoc("v2"), 2))
	assert.Empty(t, gw.calls)

	// Enabling flushes only the newest held-back snapshot.
	require.NoError(t, bridge.SetEnabled(ctx, true))
	require.Len(t, gw.calls, 1)
	assert.Equal(t, "v2", gw.calls[0].doc.Name)

	// Once enabled, mirrors go straight through.
	require.NoError(t, bridge.Mirror(ctx, testDoc("v3"), 3))
	require.Len(t, gw.calls, 2)
	assert.Equal(t, "v3", gw.calls[1].doc.Name)
}

func TestBridge_HoldsSnapshotsWithoutTarget(t *testing.T) {
	ctx := context.Background()
	gw := &recordingGateway{}
	bridge := liveupdate.NewBridge(gw, "session", nil)

	require.NoError(t, bridge.SetEnabled(ctx, true))
	require.NoError(t, bridge.Mirror(ctx, testDoc("v1"), 1))
	assert.Empty(t, gw.calls)

	bridge.SetTarget(models.TransientRef{ID: "inst-1", Name: "preview"})
	require.NoError(t, bridge.Flush(ctx))
	require.Len(t, gw.calls, 1)
	assert.Equal(t, "v1", gw.calls[0].doc.Name)

	// Nothing pending, flush is a no-op.
	require.NoError(t, bridge.Flush(ctx))
	assert.Len(t, gw.calls, 1)
}

func TestBridge_Crossfade(t *testing.T) {
	ctx := context.Background()
	gw := &recordingGateway{}
	bridge := liveupdate.NewBridge(gw, "session", nil, liveupdate.WithCrossfade(250*time.Millisecond))
	bridge.SetTarget(models.TransientRef{ID: "inst-1"})

	require.NoError(t, bridge.SetEnabled(ctx, true))
	require.NoError(t, bridge.Mirror(ctx, testDoc("v1"), 1))
	require.Len(t, gw.calls, 1)
	assert.Equal(t, 250*time.Millisecond, gw.calls[0].crossfade)

	bridge.SetCrossfade(50 * time.Millisecond)
	require.NoError(t, bridge.Mirror(ctx, testDoc("v2"), 2))
	require.Len(t, gw.calls, 2)
	assert.Equal(t, 50*time.Millisecond, gw.calls[1].crossfade)
}

func TestBridge_FailedPushKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	gw := &recordingGateway{err: errors.New("instance gone")}
	bridge := liveupdate.NewBridge(gw, "session", nil)
	bridge.SetTarget(models.TransientRef{ID: "inst-1"})

	require.NoError(t, bridge.SetEnabled(ctx, true))

	err := bridge.Mirror(ctx, testDoc("v1"), 1)
	require.Error(t, err)

	// The snapshot survives the failure and the next flush delivers it.
	gw.err = nil
	require.NoError(t, bridge.Flush(ctx))
	require.Len(t, gw.calls, 1)
	assert.Equal(t, "v1", gw.calls[0].doc.Name)
}

func TestBridge_DropsStaleRevisions(t *testing.T) {
	ctx := context.Background()
	gw := &recordingGateway{}
	bridge := liveupdate.NewBridge(gw, "session", nil)
	bridge.SetTarget(models.TransientRef{ID: "inst-1"})
	require.NoError(t, bridge.SetEnabled(ctx, true))

	require.NoError(t, bridge.Mirror(ctx, testDoc("v2"), 2))
	require.Len(t, gw.calls, 1)

	// A snapshot overtaken before delivery must not rewind the instance.
	require.NoError(t, bridge.Mirror(ctx, testDoc("v1"), 1))
	require.Len(t, gw.calls, 1)
	assert.Equal(t, "v2", gw.calls[0].doc.Name)
}

func TestBridge_FailedPushDoesNotClobberNewerSnapshot(t *testing.T) {
	ctx := context.Background()
	gw := &recordingGateway{err: errors.New("instance gone")}
	bridge := liveupdate.NewBridge(gw, "session", nil)
	bridge.SetTarget(models.TransientRef{ID: "inst-1"})
	require.NoError(t, bridge.SetEnabled(ctx, true))

	require.Error(t, bridge.Mirror(ctx, testDoc("v1"), 1))

	// A newer snapshot arrives while the failed one is held back; the
	// older one must not resurface on the next flush.
	gw.err = nil
	require.NoError(t, bridge.Mirror(ctx, testDoc("v2"), 2))
	require.NoError(t, bridge.Flush(ctx))
	require.Len(t, gw.calls, 1)
	assert.Equal(t, "v2", gw.calls[0].doc.Name)
}

func TestBridge_AgainstInProcessHost(t *testing.T) {
	ctx := context.Background()
	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)

	ref, err := h.BuildTransient(ctx, testDoc("v1"), "preview")
	require.NoError(t, err)

	bridge := liveupdate.NewBridge(h, "session", nil)
	bridge.SetTarget(ref)
	require.NoError(t, bridge.SetEnabled(ctx, true))

	require.NoError(t, bridge.Mirror(ctx, testDoc("v2"), 2))

	rev, ok := h.InstanceRevision(ref.ID)
	require.True(t, ok)
	assert.Equal(t, 2, rev)

	doc, _ := h.InstanceDocument(ref.ID)
	assert.Equal(t, "v2", doc.Name)
}
