// Package events defines event types and structures for authoring
// lifecycle notifications: session activity, graph mutations and
// materialization outcomes.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/soundforge/soundforge/pkg/models"
)

type EventType string

// Kafka topic.
const Topic = "soundforge.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Session lifecycle events.
	SessionOpenedEvent EventType = "session.opened"
	SessionClosedEvent EventType = "session.closed"

	// Graph mutation events.
	NodeAddedEvent        EventType = "node.added"
	NodeRemovedEvent      EventType = "node.removed"
	PinsConnectedEvent    EventType = "pins.connected"
	PinsDisconnectedEvent EventType = "pins.disconnected"

	// Materialization events.
	TransientBuiltEvent       EventType = "transient.built"
	TransientOverwrittenEvent EventType = "transient.overwritten"
	AssetPersistedEvent       EventType = "asset.persisted"
	AssetReopenedEvent        EventType = "asset.reopened"

	// Live update and audition events.
	LiveUpdateAppliedEvent EventType = "liveupdate.applied"
	AuditionStartedEvent   EventType = "audition.started"
	AuditionStoppedEvent   EventType = "audition.stopped"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Session   string         `json:"session"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates the common envelope for a session-scoped event.
func NewBaseEvent(eventType EventType, session string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Session:   session,
	}
}

type SessionOpened struct {
	BaseEvent

	AssetType  models.AssetType `json:"asset_type"`
	FromAsset  string           `json:"from_asset,omitempty"`
	CatalogLen int              `json:"catalog_len,omitempty"`
}

func (e SessionOpened) GetType() EventType {
	return SessionOpenedEvent
}

type SessionClosed struct {
	BaseEvent

	State string `json:"state"`
}

func (e SessionClosed) GetType() EventType {
	return SessionClosedEvent
}

type NodeAdded struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
}

func (e NodeAdded) GetType() EventType {
	return NodeAddedEvent
}

type NodeRemoved struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	Cascade bool   `json:"cascade"`
}

func (e NodeRemoved) GetType() EventType {
	return NodeRemovedEvent
}

type PinsConnected struct {
	BaseEvent

	From models.PortRef `json:"from"`
	To   models.PortRef `json:"to"`
}

func (e PinsConnected) GetType() EventType {
	return PinsConnectedEvent
}

type PinsDisconnected struct {
	BaseEvent

	From models.PortRef `json:"from"`
	To   models.PortRef `json:"to"`
}

func (e PinsDisconnected) GetType() EventType {
	return PinsDisconnectedEvent
}

type TransientBuilt struct {
	BaseEvent

	InstanceID   string `json:"instance_id"`
	InstanceName string `json:"instance_name"`
}

func (e TransientBuilt) GetType() EventType {
	return TransientBuiltEvent
}

type TransientOverwritten struct {
	BaseEvent

	InstanceID          string `json:"instance_id"`
	ForceUniqueIdentity bool   `json:"force_unique_identity"`
}

func (e TransientOverwritten) GetType() EventType {
	return TransientOverwrittenEvent
}

type AssetPersisted struct {
	BaseEvent

	AssetID  string `json:"asset_id"`
	Location string `json:"location"`
	Author   string `json:"author,omitempty"`
}

func (e AssetPersisted) GetType() EventType {
	return AssetPersistedEvent
}

type AssetReopened struct {
	BaseEvent

	Location string `json:"location"`
}

func (e AssetReopened) GetType() EventType {
	return AssetReopenedEvent
}

type LiveUpdateApplied struct {
	BaseEvent

	InstanceID  string        `json:"instance_id"`
	CrossfadeMS int64         `json:"crossfade_ms"`
	Latency     time.Duration `json:"latency,omitempty"`
}

func (e LiveUpdateApplied) GetType() EventType {
	return LiveUpdateAppliedEvent
}

type AuditionStarted struct {
	BaseEvent

	SinkID       string `json:"sink_id"`
	InstanceID   string `json:"instance_id"`
	InstanceName string `json:"instance_name"`
}

func (e AuditionStarted) GetType() EventType {
	return AuditionStartedEvent
}

type AuditionStopped struct {
	BaseEvent

	SinkID string `json:"sink_id"`
}

func (e AuditionStopped) GetType() EventType {
	return AuditionStoppedEvent
}
