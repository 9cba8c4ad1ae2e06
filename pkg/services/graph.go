package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundforge/soundforge/pkg/builder"
	"github.com/soundforge/soundforge/pkg/eventbus"
	"github.com/soundforge/soundforge/pkg/events"
	"github.com/soundforge/soundforge/pkg/models"
)

// Graph exposes the builder's mutation API addressed by session name and
// document node IDs, the form the REST surface works in. Handles stay an
// in-process concern; callers outside this package never see them.
type Graph struct {
	sessions  *Sessions
	logger    *slog.Logger
	publisher eventbus.EventPublisher
}

// NewGraph creates the graph mutation service.
func NewGraph(sessions *Sessions, logger *slog.Logger, publisher eventbus.EventPublisher) *Graph {
	if logger == nil {
		logger = slog.Default()
	}

	return &Graph{
		sessions:  sessions,
		logger:    logger.With("module", "graph_service"),
		publisher: publisher,
	}
}

// AddNode adds a node of the given type and returns its document ID.
func (g *Graph) AddNode(ctx context.Context, sessionName, nodeType string) (string, error) {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return "", err
	}

	typeID, err := models.ParseNodeTypeID(nodeType)
	if err != nil {
		return "", &ServiceError{Op: "AddNode", Session: sessionName, Err: fmt.Errorf("%w: %w", ErrInvalidRequest, err)}
	}

	handle, err := session.AddNode(ctx, typeID)
	if err != nil {
		return "", err
	}

	nodeID, err := session.NodeID(handle)
	if err != nil {
		return "", err
	}

	g.publish(ctx, sessionName, events.NodeAdded{
		BaseEvent: events.NewBaseEvent(events.NodeAddedEvent, sessionName),
		NodeID:    nodeID,
		NodeType:  nodeType,
	})

	return nodeID, nil
}

// RemoveNode removes a node by document ID. With cascade, its connections
// are disconnected first; without, a connected node is refused.
func (g *Graph) RemoveNode(ctx context.Context, sessionName, nodeID string, cascade bool) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	handle, ok := session.NodeHandleByID(nodeID)
	if !ok {
		return &ServiceError{Op: "RemoveNode", Session: sessionName, Err: ErrNodeNotFound}
	}

	if err := session.RemoveNode(ctx, handle, cascade); err != nil {
		return err
	}

	g.publish(ctx, sessionName, events.NodeRemoved{
		BaseEvent: events.NewBaseEvent(events.NodeRemovedEvent, sessionName),
		NodeID:    nodeID,
		Cascade:   cascade,
	})

	return nil
}

// Connect wires an output endpoint to an input endpoint. Endpoints use
// "node:pin" notation; "__graph__:name" addresses the graph boundary.
func (g *Graph) Connect(ctx context.Context, sessionName, from, to string) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	fromPin, err := g.resolveOutput(session, sessionName, from)
	if err != nil {
		return err
	}

	toPin, err := g.resolveInput(session, sessionName, to)
	if err != nil {
		return err
	}

	if err := session.Connect(ctx, fromPin, toPin); err != nil {
		return err
	}

	g.publish(ctx, sessionName, events.PinsConnected{
		BaseEvent: events.NewBaseEvent(events.PinsConnectedEvent, sessionName),
		From:      portRef(from),
		To:        portRef(to),
	})

	return nil
}

// Disconnect removes the connection between two endpoints.
func (g *Graph) Disconnect(ctx context.Context, sessionName, from, to string) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	fromPin, err := g.resolveOutput(session, sessionName, from)
	if err != nil {
		return err
	}

	toPin, err := g.resolveInput(session, sessionName, to)
	if err != nil {
		return err
	}

	if err := session.Disconnect(ctx, fromPin, toPin); err != nil {
		return err
	}

	g.publish(ctx, sessionName, events.PinsDisconnected{
		BaseEvent: events.NewBaseEvent(events.PinsDisconnectedEvent, sessionName),
		From:      portRef(from),
		To:        portRef(to),
	})

	return nil
}

// SetDefault sets an input's default literal.
func (g *Graph) SetDefault(ctx context.Context, sessionName, endpoint string, value models.Literal) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	pin, err := g.resolveInput(session, sessionName, endpoint)
	if err != nil {
		return err
	}

	return session.SetInputDefault(ctx, pin, value)
}

// GetDefault returns an input's default literal, or nil when unset.
func (g *Graph) GetDefault(_ context.Context, sessionName, endpoint string) (*models.Literal, error) {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return nil, err
	}

	pin, err := g.resolveInput(session, sessionName, endpoint)
	if err != nil {
		return nil, err
	}

	return session.GetInputDefault(pin)
}

// DeclareInput declares a graph-level input port.
func (g *Graph) DeclareInput(ctx context.Context, sessionName, name string, dataType models.DataType, def *models.Literal) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	return session.DeclareGraphInput(ctx, name, dataType, def)
}

// DeclareOutput declares a graph-level output port.
func (g *Graph) DeclareOutput(ctx context.Context, sessionName, name string, dataType models.DataType, def *models.Literal) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	return session.DeclareGraphOutput(ctx, name, dataType, def)
}

// RemoveInput removes a graph-level input port and its connections.
func (g *Graph) RemoveInput(ctx context.Context, sessionName, name string) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	return session.RemoveGraphInput(ctx, name)
}

// RemoveOutput removes a graph-level output port and its connections.
func (g *Graph) RemoveOutput(ctx context.Context, sessionName, name string) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	return session.RemoveGraphOutput(ctx, name)
}

// SetAssetType changes the session's target asset type.
func (g *Graph) SetAssetType(ctx context.Context, sessionName string, assetType models.AssetType) error {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return err
	}

	return session.SetAssetType(ctx, assetType)
}

// Snapshot returns a deep copy of the session's current document.
func (g *Graph) Snapshot(_ context.Context, sessionName string) (*models.GraphDocument, error) {
	session, err := g.sessions.Get(sessionName)
	if err != nil {
		return nil, err
	}

	return session.Snapshot(), nil
}

func (g *Graph) resolveOutput(session *builder.Session, sessionName, endpoint string) (builder.OutputPinHandle, error) {
	node, pin, err := splitEndpoint(endpoint)
	if err != nil {
		return builder.OutputPinHandle{}, &ServiceError{Op: "ResolveOutput", Session: sessionName, Err: err}
	}

	if node == models.GraphBoundary {
		return session.GraphInput(pin)
	}

	handle, ok := session.NodeHandleByID(node)
	if !ok {
		return builder.OutputPinHandle{}, &ServiceError{Op: "ResolveOutput", Session: sessionName, Err: ErrNodeNotFound}
	}

	return session.FindOutputByName(handle, pin)
}

func (g *Graph) resolveInput(session *builder.Session, sessionName, endpoint string) (builder.InputPinHandle, error) {
	node, pin, err := splitEndpoint(endpoint)
	if err != nil {
		return builder.InputPinHandle{}, &ServiceError{Op: "ResolveInput", Session: sessionName, Err: err}
	}

	if node == models.GraphBoundary {
		return session.GraphOutput(pin)
	}

	handle, ok := session.NodeHandleByID(node)
	if !ok {
		return builder.InputPinHandle{}, &ServiceError{Op: "ResolveInput", Session: sessionName, Err: ErrNodeNotFound}
	}

	return session.FindInputByName(handle, pin)
}

func splitEndpoint(endpoint string) (string, string, error) {
	node, pin, ok := strings.Cut(endpoint, ":")
	if !ok || node == "" || pin == "" {
		return "", "", fmt.Errorf("%w: want \"node:pin\", got %q", ErrInvalidEndpoint, endpoint)
	}

	return node, pin, nil
}

func portRef(endpoint string) models.PortRef {
	node, pin, _ := strings.Cut(endpoint, ":")

	return models.PortRef{NodeID: node, Pin: pin}
}

func (g *Graph) publish(ctx context.Context, key string, event eventbus.Event) {
	if g.publisher == nil {
		return
	}

	if err := g.publisher.Publish(ctx, key, event); err != nil {
		g.logger.WarnContext(ctx, "Failed to publish graph event", "error", err)
	}
}
