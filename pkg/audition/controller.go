// Package audition drives playback of transient graph instances through
// host sinks: create, bind, start, stop, release.
package audition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/soundforge/soundforge/pkg/eventbus"
	"github.com/soundforge/soundforge/pkg/events"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/models"
)

// ErrNotAuditioning is returned when stopping a session that has no
// running playback.
var ErrNotAuditioning = errors.New("session is not auditioning")

// ErrAlreadyAuditioning is returned when starting a second playback for a
// session that already has one.
var ErrAlreadyAuditioning = errors.New("session is already auditioning")

// Playback is one running audition: a host sink bound to a transient
// instance.
type Playback struct {
	Session  string
	Sink     gateway.SinkRef
	Instance models.TransientRef
}

// Controller manages one playback per session.
type Controller struct {
	mu        sync.Mutex
	gw        gateway.Gateway
	logger    *slog.Logger
	publisher eventbus.EventPublisher
	playbacks map[string]*Playback
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher attaches an event publisher for audition events.
func WithPublisher(pub eventbus.EventPublisher) Option {
	return func(c *Controller) {
		c.publisher = pub
	}
}

// NewController creates an audition controller over the given gateway.
func NewController(gw gateway.Gateway, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		gw:        gw,
		logger:    logger.With("module", "audition"),
		playbacks: make(map[string]*Playback),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start creates a sink, binds it to the session's transient instance and
// starts playback. Fails with ErrAlreadyAuditioning if the session already
// has a running playback.
func (c *Controller) Start(ctx context.Context, sessionName string, instance models.TransientRef) (*Playback, error) {
	// Reserve the session before touching the gateway so a concurrent Start
	// cannot pass the check and leak a second sink.
	c.mu.Lock()
	if _, running := c.playbacks[sessionName]; running {
		c.mu.Unlock()

		return nil, ErrAlreadyAuditioning
	}
	c.playbacks[sessionName] = nil
	c.mu.Unlock()

	sink, err := c.gw.CreateSink(ctx, "audition-"+sessionName)
	if err != nil {
		c.unreserve(sessionName)

		return nil, fmt.Errorf("failed to create sink: %w", err)
	}

	if err := c.gw.BindSink(ctx, sink, instance); err != nil {
		c.release(ctx, sink)
		c.unreserve(sessionName)

		return nil, fmt.Errorf("failed to bind sink: %w", err)
	}

	if err := c.gw.StartSink(ctx, sink); err != nil {
		c.release(ctx, sink)
		c.unreserve(sessionName)

		return nil, fmt.Errorf("failed to start sink: %w", err)
	}

	playback := &Playback{
		Session:  sessionName,
		Sink:     sink,
		Instance: instance,
	}

	c.mu.Lock()
	c.playbacks[sessionName] = playback
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Audition started",
		"session", sessionName, "sink_id", sink.ID, "instance_id", instance.ID)
	c.publish(ctx, sessionName, events.AuditionStarted{
		BaseEvent:    events.NewBaseEvent(events.AuditionStartedEvent, sessionName),
		SinkID:       sink.ID,
		InstanceID:   instance.ID,
		InstanceName: instance.Name,
	})

	return playback, nil
}

// Stop halts playback and releases the sink. Fails with ErrNotAuditioning
// when the session has no running playback.
func (c *Controller) Stop(ctx context.Context, sessionName string) error {
	c.mu.Lock()
	playback, running := c.playbacks[sessionName]
	// A nil entry is a Start still in flight; it is not stoppable yet.
	running = running && playback != nil
	if running {
		delete(c.playbacks, sessionName)
	}
	c.mu.Unlock()

	if !running {
		return ErrNotAuditioning
	}

	if err := c.gw.StopSink(ctx, playback.Sink); err != nil && !errors.Is(err, gateway.ErrSinkNotFound) {
		c.logger.WarnContext(ctx, "Failed to stop sink", "sink_id", playback.Sink.ID, "error", err)
	}

	c.release(ctx, playback.Sink)

	c.logger.InfoContext(ctx, "Audition stopped", "session", sessionName, "sink_id", playback.Sink.ID)
	c.publish(ctx, sessionName, events.AuditionStopped{
		BaseEvent: events.NewBaseEvent(events.AuditionStoppedEvent, sessionName),
		SinkID:    playback.Sink.ID,
	})

	return nil
}

// Playback returns the session's running playback, if any.
func (c *Controller) Playback(sessionName string) (*Playback, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	playback, ok := c.playbacks[sessionName]

	return playback, ok && playback != nil
}

func (c *Controller) unreserve(sessionName string) {
	c.mu.Lock()
	delete(c.playbacks, sessionName)
	c.mu.Unlock()
}

// Active reports whether the session is auditioning.
func (c *Controller) Active(sessionName string) bool {
	_, ok := c.Playback(sessionName)

	return ok
}

func (c *Controller) release(ctx context.Context, sink gateway.SinkRef) {
	if err := c.gw.ReleaseSink(ctx, sink); err != nil && !errors.Is(err, gateway.ErrSinkNotFound) {
		c.logger.WarnContext(ctx, "Failed to release sink", "sink_id", sink.ID, "error", err)
	}
}

func (c *Controller) publish(ctx context.Context, key string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, key, event); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish audition event", "error", err)
	}
}
