package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundforge/soundforge/pkg/audition"
	"github.com/soundforge/soundforge/pkg/eventbus"
	"github.com/soundforge/soundforge/pkg/events"
	"github.com/soundforge/soundforge/pkg/materializer"
	"github.com/soundforge/soundforge/pkg/models"
)

// Authoring orchestrates materialization and audition around open
// sessions: build transient, push overwrites, persist to storage, and run
// playback with the live-update bridge enabled.
type Authoring struct {
	sessions  *Sessions
	mat       *materializer.Materializer
	audition  *audition.Controller
	logger    *slog.Logger
	publisher eventbus.EventPublisher
}

// NewAuthoring creates the authoring orchestration service.
func NewAuthoring(sessions *Sessions, mat *materializer.Materializer, aud *audition.Controller, logger *slog.Logger, publisher eventbus.EventPublisher) *Authoring {
	if logger == nil {
		logger = slog.Default()
	}

	return &Authoring{
		sessions:  sessions,
		mat:       mat,
		audition:  aud,
		logger:    logger.With("module", "authoring"),
		publisher: publisher,
	}
}

// BuildTransient materializes the session as a live transient instance and
// points the session's live-update bridge at it.
func (a *Authoring) BuildTransient(ctx context.Context, sessionName, nameHint string) (models.TransientRef, error) {
	session, err := a.sessions.Get(sessionName)
	if err != nil {
		return models.TransientRef{}, err
	}

	ref, err := a.mat.BuildTransient(ctx, session, nameHint)
	if err != nil {
		return models.TransientRef{}, err
	}

	if bridge, berr := a.sessions.Bridge(sessionName); berr == nil {
		bridge.SetTarget(ref)
	}

	a.publish(ctx, sessionName, events.TransientBuilt{
		BaseEvent:    events.NewBaseEvent(events.TransientBuiltEvent, sessionName),
		InstanceID:   ref.ID,
		InstanceName: ref.Name,
	})

	return ref, nil
}

// OverwriteTransient pushes the session's current document into its
// transient instance wholesale.
func (a *Authoring) OverwriteTransient(ctx context.Context, sessionName string, forceUniqueIdentity bool) error {
	session, err := a.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	if err := a.mat.OverwriteTransient(ctx, session, forceUniqueIdentity); err != nil {
		return err
	}

	a.publish(ctx, sessionName, events.TransientOverwritten{
		BaseEvent:           events.NewBaseEvent(events.TransientOverwrittenEvent, sessionName),
		InstanceID:          session.TransientRef().ID,
		ForceUniqueIdentity: forceUniqueIdentity,
	})

	return nil
}

// BuildToAsset persists the session's document as a new durable asset.
func (a *Authoring) BuildToAsset(ctx context.Context, sessionName string, req materializer.BuildRequest) (models.AssetRef, error) {
	session, err := a.sessions.Get(sessionName)
	if err != nil {
		return models.AssetRef{}, err
	}

	ref, err := a.mat.BuildToAsset(ctx, session, req)
	if err != nil {
		return models.AssetRef{}, err
	}

	a.publish(ctx, sessionName, events.AssetPersisted{
		BaseEvent: events.NewBaseEvent(events.AssetPersistedEvent, sessionName),
		AssetID:   ref.ID,
		Location:  ref.Location(),
		Author:    req.AuthorTag,
	})

	return ref, nil
}

// StartAudition plays the session through a host sink. A session without
// a transient instance is materialized first. The live-update bridge is
// enabled for the duration of the playback.
func (a *Authoring) StartAudition(ctx context.Context, sessionName string) (*audition.Playback, error) {
	session, err := a.sessions.Get(sessionName)
	if err != nil {
		return nil, err
	}

	ref := session.TransientRef()
	if ref.ID == "" {
		ref, err = a.BuildTransient(ctx, sessionName, "")
		if err != nil {
			return nil, err
		}
	}

	playback, err := a.audition.Start(ctx, sessionName, ref)
	if err != nil {
		return nil, err
	}

	if bridge, berr := a.sessions.Bridge(sessionName); berr == nil {
		if err := bridge.SetEnabled(ctx, true); err != nil {
			a.logger.WarnContext(ctx, "Failed to flush pending live update", "session", sessionName, "error", err)
		}
	}

	return playback, nil
}

// StopAudition halts playback and disables the live-update bridge.
func (a *Authoring) StopAudition(ctx context.Context, sessionName string) error {
	if bridge, err := a.sessions.Bridge(sessionName); err == nil {
		_ = bridge.SetEnabled(ctx, false)
	}

	return a.audition.Stop(ctx, sessionName)
}

// Auditioning reports whether the session has a running playback.
func (a *Authoring) Auditioning(sessionName string) bool {
	return a.audition.Active(sessionName)
}

// SetCrossfade adjusts the live-update blend time for a session.
func (a *Authoring) SetCrossfade(sessionName string, d time.Duration) error {
	bridge, err := a.sessions.Bridge(sessionName)
	if err != nil {
		return err
	}

	bridge.SetCrossfade(d)

	return nil
}

func (a *Authoring) publish(ctx context.Context, key string, event eventbus.Event) {
	if a.publisher == nil {
		return
	}

	if err := a.publisher.Publish(ctx, key, event); err != nil {
		a.logger.WarnContext(ctx, "Failed to publish authoring event", "error", err)
	}
}
