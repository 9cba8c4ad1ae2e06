package host_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/host"
	"github.com/soundforge/soundforge/pkg/models"
)

// startTestServer runs a host server on a loopback port and returns a TCP
// gateway client wired to it.
func startTestServer(t *testing.T) *gateway.TCPClient {
	t.Helper()

	server := host.NewServer(newTestHost(), nil)
	require.NoError(t, server.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = server.Serve(ctx)
	}()

	client := gateway.NewTCPClient(server.Addr().String(), nil)

	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		_ = server.Close()
		<-done
	})

	return client
}

func TestServer_TransientRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := startTestServer(t)

	ref, err := client.BuildTransient(ctx, testDocument("a"), "preview")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "preview", ref.Name)

	require.NoError(t, client.OverwriteTransient(ctx, ref, testDocument("a2"), true))

	err = client.OverwriteTransient(ctx, models.TransientRef{ID: "missing"}, testDocument("x"), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrInstanceNotFound)
}

func TestServer_AssetRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := startTestServer(t)

	doc := testDocument("a")

	ref, err := client.BuildToAsset(ctx, doc, gateway.BuildAssetRequest{
		AuthorTag:   "sound-team",
		AssetName:   "Whoosh",
		StoragePath: "/sfx",
	})
	require.NoError(t, err)
	assert.Equal(t, "Whoosh", ref.Name)

	loaded, err := client.ReopenForEditing(ctx, ref)
	require.NoError(t, err)
	assert.True(t, loaded.StructurallyEqual(doc))

	// Error codes survive the wire and map back to sentinels.
	_, err = client.BuildToAsset(ctx, doc, gateway.BuildAssetRequest{
		AssetName:   "Whoosh",
		StoragePath: "/sfx",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrStorageConflict)
	assert.True(t, gateway.IsStorageConflict(err))

	_, err = client.ReopenForEditing(ctx, models.AssetRef{ID: "x", Name: "Nope", Path: "/sfx"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrAssetNotFound)

	_, err = client.BuildToAsset(ctx, doc, gateway.BuildAssetRequest{
		AssetName:   "Bad",
		StoragePath: "relative/path",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrBadRequest)
}

func TestServer_SinkLifecycle(t *testing.T) {
	ctx := context.Background()
	client := startTestServer(t)

	instance, err := client.BuildTransient(ctx, testDocument("a"), "preview")
	require.NoError(t, err)

	sink, err := client.CreateSink(ctx, "audition")
	require.NoError(t, err)
	require.NoError(t, client.BindSink(ctx, sink, instance))
	require.NoError(t, client.StartSink(ctx, sink))
	require.NoError(t, client.UpdateLive(ctx, instance, testDocument("a2"), 150*time.Millisecond))
	require.NoError(t, client.StopSink(ctx, sink))
	require.NoError(t, client.ReleaseSink(ctx, sink))

	err = client.StartSink(ctx, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrSinkNotFound)
}

func TestTCPClient_Unavailable(t *testing.T) {
	client := gateway.NewTCPClient("127.0.0.1:1", nil)
	defer client.Close()

	_, err := client.BuildTransient(context.Background(), testDocument("a"), "preview")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.True(t, gateway.IsUnavailable(err))
}
