package audition_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/audition"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/host"
	"github.com/soundforge/soundforge/pkg/host/dedup"
	"github.com/soundforge/soundforge/pkg/host/store"
	"github.com/soundforge/soundforge/pkg/models"
)

func setup(t *testing.T) (*host.Host, *audition.Controller, models.TransientRef) {
	t.Helper()

	h := host.New(store.NewMemoryStore(), dedup.NewMemoryStore(), nil)
	controller := audition.NewController(h, nil)

	doc := &models.GraphDocument{Name: "graph", AssetType: models.AssetTypeSource}

	instance, err := h.BuildTransient(context.Background(), doc, "preview")
	require.NoError(t, err)

	return h, controller, instance
}

func TestController_StartStop(t *testing.T) {
	ctx := context.Background()
	h, controller, instance := setup(t)

	playback, err := controller.Start(ctx, "session", instance)
	require.NoError(t, err)
	assert.Equal(t, instance, playback.Instance)
	assert.True(t, controller.Active("session"))

	running, ok := h.SinkRunning(playback.Sink.ID)
	require.True(t, ok)
	assert.True(t, running)

	require.NoError(t, controller.Stop(ctx, "session"))
	assert.False(t, controller.Active("session"))

	// The sink is gone from the host after stopping.
	_, ok = h.SinkRunning(playback.Sink.ID)
	assert.False(t, ok)
}

func TestController_StartTwice(t *testing.T) {
	ctx := context.Background()
	_, controller, instance := setup(t)

	_, err := controller.Start(ctx, "session", instance)
	require.NoError(t, err)

	_, err = controller.Start(ctx, "session", instance)
	require.Error(t, err)
	assert.ErrorIs(t, err, audition.ErrAlreadyAuditioning)

	// Other sessions are unaffected.
	_, err = controller.Start(ctx, "other", instance)
	require.NoError(t, err)
}

// gatedGateway delays CreateSink until both callers have reached the gate,
// forcing two Starts to overlap.
type gatedGateway struct {
	gateway.Gateway

	mu      sync.Mutex
	arrived chan struct{}
	creates int
}

func (g *gatedGateway) CreateSink(ctx context.Context, name string) (gateway.SinkRef, error) {
	g.mu.Lock()
	g.creates++
	g.mu.Unlock()

	<-g.arrived

	return g.Gateway.CreateSink(ctx, name)
}

func TestController_ConcurrentStart(t *testing.T) {
	ctx := context.Background()
	h, _, instance := setup(t)

	gw := &gatedGateway{Gateway: h, arrived: make(chan struct{})}
	controller := audition.NewController(gw, nil)

	errs := make(chan error, 2)

	var wg sync.WaitGroup

	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := controller.Start(ctx, "session", instance)
			errs <- err
		}()
	}

	// Let both goroutines race past the reservation before any sink exists.
	time.Sleep(50 * time.Millisecond)
	close(gw.arrived)
	wg.Wait()
	close(errs)

	var succeeded, rejected int

	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, audition.ErrAlreadyAuditioning):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	// The loser never reached the gateway, so only one sink was created.
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, 1, gw.creates)
}

func TestController_StopWithoutStart(t *testing.T) {
	_, controller, _ := setup(t)

	err := controller.Stop(context.Background(), "session")
	require.Error(t, err)
	assert.ErrorIs(t, err, audition.ErrNotAuditioning)
}

func TestController_BindFailureReleasesSink(t *testing.T) {
	ctx := context.Background()
	h, controller, _ := setup(t)

	// Binding a missing instance fails and must not leak the sink.
	_, err := controller.Start(ctx, "session", models.TransientRef{ID: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrInstanceNotFound)
	assert.False(t, controller.Active("session"))

	// A later start for the same session works fine.
	doc := &models.GraphDocument{Name: "graph", AssetType: models.AssetTypeSource}
	instance, err := h.BuildTransient(ctx, doc, "retry")
	require.NoError(t, err)

	_, err = controller.Start(ctx, "session", instance)
	require.NoError(t, err)
}
