// Package liveupdate mirrors successful graph mutations onto a running
// transient instance so sound designers hear edits as they make them. The
// bridge sits behind the builder's Mirror hook: the local document is
// always the source of truth and a failed mirror never rolls an edit back.
package liveupdate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soundforge/soundforge/pkg/eventbus"
	"github.com/soundforge/soundforge/pkg/events"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/models"
)

// defaultCrossfade is the hot-swap blend time used unless overridden.
const defaultCrossfade = 100 * time.Millisecond

// Bridge forwards document snapshots to the transient instance of one
// session. While disabled, or before a transient instance exists, the
// latest snapshot is held back and delivered on the next flush.
type Bridge struct {
	mu        sync.Mutex
	gw        gateway.Gateway
	logger    *slog.Logger
	publisher eventbus.EventPublisher
	session   string
	target    models.TransientRef
	enabled   bool
	crossfade time.Duration

	// pushMu serializes gateway pushes so snapshots reach the instance in
	// revision order even when mutations race past the session lock.
	pushMu     sync.Mutex
	pending    *models.GraphDocument
	pendingRev uint64
	seenRev    uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPublisher attaches an event publisher for liveupdate.applied events.
func WithPublisher(pub eventbus.EventPublisher) Option {
	return func(b *Bridge) {
		b.publisher = pub
	}
}

// WithCrossfade overrides the default crossfade duration.
func WithCrossfade(d time.Duration) Option {
	return func(b *Bridge) {
		b.crossfade = d
	}
}

// NewBridge creates a bridge for one session. It starts disabled; enable
// it once an audition is running.
func NewBridge(gw gateway.Gateway, sessionName string, logger *slog.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		gw:        gw,
		logger:    logger.With("module", "liveupdate", "session", sessionName),
		session:   sessionName,
		crossfade: defaultCrossfade,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// SetTarget points the bridge at a transient instance. Called after the
// session is materialized or re-materialized.
func (b *Bridge) SetTarget(ref models.TransientRef) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.target = ref
}

// SetCrossfade adjusts the blend time for subsequent updates.
func (b *Bridge) SetCrossfade(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.crossfade = d
}

// Enabled reports whether mirroring is active.
func (b *Bridge) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.enabled
}

// SetEnabled toggles mirroring. Enabling delivers the snapshot that
// accumulated while the bridge was off.
func (b *Bridge) SetEnabled(ctx context.Context, enabled bool) error {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()

	if enabled {
		return b.Flush(ctx)
	}

	return nil
}

// Mirror implements builder.Mirror. Only the newest snapshot matters: a
// snapshot whose revision is at or below the highest one already seen is
// dropped, so delivery order cannot rewind the instance to an older state.
func (b *Bridge) Mirror(ctx context.Context, doc *models.GraphDocument, revision uint64) error {
	b.mu.Lock()

	if revision <= b.seenRev {
		b.mu.Unlock()

		return nil
	}

	b.seenRev = revision
	b.pending = doc
	b.pendingRev = revision
	b.mu.Unlock()

	return b.Flush(ctx)
}

// Flush delivers the held-back snapshot, if any. No-op when the bridge is
// disabled or has no target yet.
func (b *Bridge) Flush(ctx context.Context) error {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	b.mu.Lock()

	if !b.enabled || b.target.ID == "" || b.pending == nil {
		b.mu.Unlock()

		return nil
	}

	doc := b.pending
	rev := b.pendingRev
	b.pending = nil
	target := b.target
	crossfade := b.crossfade
	b.mu.Unlock()

	return b.push(ctx, target, doc, rev, crossfade)
}

func (b *Bridge) push(ctx context.Context, target models.TransientRef, doc *models.GraphDocument, rev uint64, crossfade time.Duration) error {
	started := time.Now()

	err := b.gw.UpdateLive(ctx, target, doc, crossfade)
	if err != nil {
		// Keep the snapshot so the next flush can catch the instance up,
		// unless a newer one arrived while this push was in flight.
		b.mu.Lock()
		if b.pending == nil && rev == b.seenRev {
			b.pending = doc
			b.pendingRev = rev
		}
		b.mu.Unlock()

		return err
	}

	b.logger.DebugContext(ctx, "Live update applied",
		"instance_id", target.ID, "crossfade", crossfade, "latency", time.Since(started))

	if b.publisher != nil {
		event := events.LiveUpdateApplied{
			BaseEvent:   events.NewBaseEvent(events.LiveUpdateAppliedEvent, b.session),
			InstanceID:  target.ID,
			CrossfadeMS: crossfade.Milliseconds(),
			Latency:     time.Since(started),
		}
		if perr := b.publisher.Publish(ctx, b.session, event); perr != nil {
			b.logger.WarnContext(ctx, "Failed to publish live update event", "error", perr)
		}
	}

	return nil
}
