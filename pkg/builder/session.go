package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/models"
)

// State is the lifecycle state of a session with respect to
// materialization. Persisted is terminal for materialize-to-storage only:
// local edits remain legal afterwards.
type State string

const (
	StateEmpty        State = "empty"
	StateDirty        State = "dirty"
	StateHasTransient State = "has_transient"
	StatePersisted    State = "persisted"
)

// Mirror receives a complete, locally-valid document snapshot after every
// successful mutation. Implemented by the live-update bridge. The revision
// increases by one per mutation, letting the receiver drop a snapshot that
// was overtaken by a newer one before delivery.
type Mirror interface {
	Mirror(ctx context.Context, doc *models.GraphDocument, revision uint64) error
}

// Session is the stateful façade over one graph under construction. It owns
// exactly one document and one handle registry, and serializes all mutation
// calls with an internal mutex; different sessions are independent.
//
// All mutation calls operate purely on local state and return immediately;
// only the materializer crosses the gateway boundary.
type Session struct {
	mu        sync.Mutex
	name      string
	catalog   catalog.Catalog
	reg       *handleRegistry
	doc       *models.GraphDocument
	handles   map[string]NodeHandle // document node ID -> live handle
	state     State
	mirror    Mirror
	revision  uint64
	touched   time.Time
	transient models.TransientRef
	persisted models.AssetRef
	source    models.AssetRef // set when reopened from an existing asset
	logger    *slog.Logger
}

// NewSession creates an empty session. The name must be unique among
// concurrently open sessions on the same gateway connection; uniqueness is
// enforced by the session manager, not here.
func NewSession(name string, cat catalog.Catalog, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		name:    name,
		catalog: cat,
		reg:     newHandleRegistry(),
		doc: &models.GraphDocument{
			Name:      name,
			AssetType: models.AssetTypeSource,
		},
		handles: make(map[string]NodeHandle),
		state:   StateEmpty,
		touched: time.Now(),
		logger:  logger.With("session", name),
	}
}

// NewSessionFromDocument seeds a session from an existing document,
// rebuilding handles for every node. Fails if any node type is no longer
// present in the catalog.
func NewSessionFromDocument(ctx context.Context, name string, cat catalog.Catalog, logger *slog.Logger, doc *models.GraphDocument) (*Session, error) {
	s := NewSession(name, cat, logger)
	s.doc = doc.Clone()
	s.doc.Name = name

	for _, n := range s.doc.Nodes {
		nt, err := cat.Lookup(ctx, n.Type)
		if err != nil {
			return nil, &MutationError{
				Op:      "OpenFromDocument",
				Session: name,
				Target:  n.Type.String(),
				Err:     fmt.Errorf("%w: %w", ErrUnknownNodeType, err),
			}
		}

		h := s.reg.add(&nodeState{id: n.ID, typ: nt})
		s.handles[n.ID] = h
	}

	if len(s.doc.Nodes) > 0 || len(s.doc.Inputs) > 0 || len(s.doc.Outputs) > 0 {
		s.state = StateDirty
	}

	return s, nil
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// LastActivity returns the time of the last successful mutation or
// materialization mark. Used by the idle-session reaper.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.touched
}

// Snapshot returns a deep copy of the document exactly as it stands after
// the most recently completed mutation call.
func (s *Session) Snapshot() *models.GraphDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc.Clone()
}

// AttachMirror wires a live-update mirror into the session. Pass nil to
// detach.
func (s *Session) AttachMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mirror = m
}

// NodeID returns the document node ID behind a live handle.
func (s *Session) NodeID(h NodeHandle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.reg.resolve(h)
	if err != nil {
		return "", &MutationError{Op: "NodeID", Session: s.name, Target: h.String(), Err: err}
	}

	return st.id, nil
}

// NodeHandleByID returns the live handle for a document node ID. Useful
// after reopening a persisted asset for editing.
func (s *Session) NodeHandleByID(id string) (NodeHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]

	return h, ok
}

// mutate runs fn under the session mutex and, on success, advances the
// state machine, stamps activity and mirrors the new snapshot. fn must
// leave the document unchanged when it returns an error.
func (s *Session) mutate(ctx context.Context, op, target string, fn func() error) error {
	s.mu.Lock()

	err := fn()

	var (
		snap *models.GraphDocument
		rev  uint64
	)

	if err == nil {
		if s.state == StateEmpty {
			s.state = StateDirty
		}

		s.revision++
		s.touched = time.Now()

		if s.mirror != nil {
			snap = s.doc.Clone()
			rev = s.revision
		}
	}

	mirror := s.mirror
	s.mu.Unlock()

	if err != nil {
		return &MutationError{Op: op, Session: s.name, Target: target, Err: err}
	}

	if snap != nil {
		if merr := mirror.Mirror(ctx, snap, rev); merr != nil {
			s.logger.WarnContext(ctx, "Live update mirror failed", "op", op, "error", merr)
		}
	}

	return nil
}

// SetAssetType changes what the document materializes into.
func (s *Session) SetAssetType(ctx context.Context, t models.AssetType) error {
	return s.mutate(ctx, "SetAssetType", string(t), func() error {
		if !models.ValidAssetType(t) {
			return fmt.Errorf("%w: invalid asset type %q", ErrTypeMismatch, t)
		}

		s.doc.AssetType = t

		return nil
	})
}

// AddNode looks up the type in the catalog, allocates a fresh handle and
// adds the node to the document with no connections and no literals.
func (s *Session) AddNode(ctx context.Context, typeID models.NodeTypeID) (NodeHandle, error) {
	var handle NodeHandle

	err := s.mutate(ctx, "AddNode", typeID.String(), func() error {
		nt, err := s.catalog.Lookup(ctx, typeID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnknownNodeType, err)
		}

		node := &models.GraphNode{
			ID:   uuid.New().String(),
			Type: typeID,
		}

		handle = s.reg.add(&nodeState{id: node.ID, typ: nt})
		s.handles[node.ID] = handle
		s.doc.Nodes = append(s.doc.Nodes, node)

		return nil
	})
	if err != nil {
		return NodeHandle{}, err
	}

	return handle, nil
}

// RemoveNode removes a node and invalidates its handle. With
// cascadeDisconnect it first removes every connection touching the node's
// pins; without, it fails if any such connection exists.
func (s *Session) RemoveNode(ctx context.Context, h NodeHandle, cascadeDisconnect bool) error {
	return s.mutate(ctx, "RemoveNode", h.String(), func() error {
		st, err := s.reg.resolve(h)
		if err != nil {
			return err
		}

		touching := 0

		for _, c := range s.doc.Connections {
			if c.From.NodeID == st.id || c.To.NodeID == st.id {
				touching++
			}
		}

		if touching > 0 && !cascadeDisconnect {
			return fmt.Errorf("%w: %d live connection(s)", ErrNodeHasDependents, touching)
		}

		if touching > 0 {
			kept := s.doc.Connections[:0]

			for _, c := range s.doc.Connections {
				if c.From.NodeID != st.id && c.To.NodeID != st.id {
					kept = append(kept, c)
				}
			}

			s.doc.Connections = kept
		}

		for i, n := range s.doc.Nodes {
			if n.ID == st.id {
				s.doc.Nodes = append(s.doc.Nodes[:i], s.doc.Nodes[i+1:]...)

				break
			}
		}

		delete(s.handles, st.id)

		return s.reg.invalidate(h)
	})
}

// FindInputByName resolves an input pin handle from a node handle and a pin
// name declared by the node's signature.
func (s *Session) FindInputByName(h NodeHandle, name string) (InputPinHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.reg.resolve(h)
	if err != nil {
		return InputPinHandle{}, &MutationError{Op: "FindInputByName", Session: s.name, Target: name, Err: err}
	}

	if st.typ.Signature.Input(name) == nil {
		return InputPinHandle{}, &MutationError{
			Op:      "FindInputByName",
			Session: s.name,
			Target:  name,
			Err:     fmt.Errorf("%w: no input %q on %s", ErrUnknownPin, name, st.typ.ID),
		}
	}

	return InputPinHandle{node: h, name: name}, nil
}

// FindOutputByName resolves an output pin handle from a node handle and a
// pin name declared by the node's signature.
func (s *Session) FindOutputByName(h NodeHandle, name string) (OutputPinHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.reg.resolve(h)
	if err != nil {
		return OutputPinHandle{}, &MutationError{Op: "FindOutputByName", Session: s.name, Target: name, Err: err}
	}

	if st.typ.Signature.Output(name) == nil {
		return OutputPinHandle{}, &MutationError{
			Op:      "FindOutputByName",
			Session: s.name,
			Target:  name,
			Err:     fmt.Errorf("%w: no output %q on %s", ErrUnknownPin, name, st.typ.ID),
		}
	}

	return OutputPinHandle{node: h, name: name}, nil
}

// GraphInput returns the synthetic output pin handle for a declared
// graph-level input (it feeds data into the graph).
func (s *Session) GraphInput(name string) (OutputPinHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.InputByName(name) == nil {
		return OutputPinHandle{}, &MutationError{Op: "GraphInput", Session: s.name, Target: name, Err: ErrUnknownGraphIO}
	}

	return OutputPinHandle{name: name, boundary: true}, nil
}

// GraphOutput returns the synthetic input pin handle for a declared
// graph-level output (it receives data leaving the graph).
func (s *Session) GraphOutput(name string) (InputPinHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.OutputByName(name) == nil {
		return InputPinHandle{}, &MutationError{Op: "GraphOutput", Session: s.name, Target: name, Err: ErrUnknownGraphIO}
	}

	return InputPinHandle{name: name, boundary: true}, nil
}

// resolveOutput maps an output pin handle to its document port ref and
// declared data type. Callers must hold s.mu.
func (s *Session) resolveOutput(h OutputPinHandle) (models.PortRef, models.DataType, error) {
	if h.boundary {
		port := s.doc.InputByName(h.name)
		if port == nil {
			return models.PortRef{}, "", fmt.Errorf("%w: graph input %q removed", ErrHandleInvalidated, h.name)
		}

		return models.PortRef{NodeID: models.GraphBoundary, Pin: h.name}, port.Type, nil
	}

	st, err := s.reg.resolve(h.node)
	if err != nil {
		return models.PortRef{}, "", err
	}

	pin := st.typ.Signature.Output(h.name)
	if pin == nil {
		return models.PortRef{}, "", fmt.Errorf("%w: %q", ErrUnknownPin, h.name)
	}

	return models.PortRef{NodeID: st.id, Pin: h.name}, pin.Type, nil
}

// resolveInput is the input-side counterpart of resolveOutput.
func (s *Session) resolveInput(h InputPinHandle) (models.PortRef, models.DataType, error) {
	if h.boundary {
		port := s.doc.OutputByName(h.name)
		if port == nil {
			return models.PortRef{}, "", fmt.Errorf("%w: graph output %q removed", ErrHandleInvalidated, h.name)
		}

		return models.PortRef{NodeID: models.GraphBoundary, Pin: h.name}, port.Type, nil
	}

	st, err := s.reg.resolve(h.node)
	if err != nil {
		return models.PortRef{}, "", err
	}

	pin := st.typ.Signature.Input(h.name)
	if pin == nil {
		return models.PortRef{}, "", fmt.Errorf("%w: %q", ErrUnknownPin, h.name)
	}

	return models.PortRef{NodeID: st.id, Pin: h.name}, pin.Type, nil
}

// Connect links an output pin to an input pin. The input must be currently
// unconnected (single-writer fan-in); outputs may fan out freely. A literal
// default on the input is cleared by a successful connect.
func (s *Session) Connect(ctx context.Context, from OutputPinHandle, to InputPinHandle) error {
	return s.mutate(ctx, "Connect", from.name+"->"+to.name, func() error {
		fromRef, fromType, err := s.resolveOutput(from)
		if err != nil {
			return err
		}

		toRef, toType, err := s.resolveInput(to)
		if err != nil {
			return err
		}

		if !s.catalog.Compatible(fromType, toType) {
			return fmt.Errorf("%w: %s (%s) -> %s (%s)", ErrTypeMismatch, fromRef, fromType, toRef, toType)
		}

		if existing := s.doc.IncomingConnection(toRef); existing != nil {
			return fmt.Errorf("%w: %s already fed by %s", ErrInputAlreadyConnected, toRef, existing.From)
		}

		s.clearDefault(toRef)
		s.doc.Connections = append(s.doc.Connections, &models.Connection{From: fromRef, To: toRef})

		return nil
	})
}

// Disconnect removes the connection between the given pins. Fails with
// ErrNotConnected if the pair is not currently linked.
func (s *Session) Disconnect(ctx context.Context, from OutputPinHandle, to InputPinHandle) error {
	return s.mutate(ctx, "Disconnect", from.name+"->"+to.name, func() error {
		fromRef, _, err := s.resolveOutput(from)
		if err != nil {
			return err
		}

		toRef, _, err := s.resolveInput(to)
		if err != nil {
			return err
		}

		for i, c := range s.doc.Connections {
			if c.From == fromRef && c.To == toRef {
				s.doc.Connections = append(s.doc.Connections[:i], s.doc.Connections[i+1:]...)

				return nil
			}
		}

		return fmt.Errorf("%w: %s -> %s", ErrNotConnected, fromRef, toRef)
	})
}

// SetInputDefault attaches a literal default to an unconnected input pin.
// Fails with ErrInputIsConnected if the pin carries a connection; the
// caller must Disconnect first.
func (s *Session) SetInputDefault(ctx context.Context, to InputPinHandle, lit models.Literal) error {
	return s.mutate(ctx, "SetInputDefault", to.name, func() error {
		toRef, toType, err := s.resolveInput(to)
		if err != nil {
			return err
		}

		if s.doc.IncomingConnection(toRef) != nil {
			return fmt.Errorf("%w: %s", ErrInputIsConnected, toRef)
		}

		if !lit.AssignableTo(toType) {
			return fmt.Errorf("%w: literal kind %s does not fit pin type %s", ErrTypeMismatch, lit.Kind, toType)
		}

		if to.boundary {
			s.doc.OutputByName(to.name).Default = &lit

			return nil
		}

		node := s.doc.NodeByID(toRef.NodeID)
		if node.Defaults == nil {
			node.Defaults = make(map[string]models.Literal)
		}

		node.Defaults[to.name] = lit

		return nil
	})
}

// GetInputDefault returns the literal currently attached to the pin, or nil
// if none is set (e.g. after a successful Connect).
func (s *Session) GetInputDefault(to InputPinHandle) (*models.Literal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	toRef, _, err := s.resolveInput(to)
	if err != nil {
		return nil, &MutationError{Op: "GetInputDefault", Session: s.name, Target: to.name, Err: err}
	}

	if to.boundary {
		return s.doc.OutputByName(to.name).Default, nil
	}

	node := s.doc.NodeByID(toRef.NodeID)
	if lit, ok := node.Defaults[to.name]; ok {
		return &lit, nil
	}

	return nil, nil
}

func (s *Session) clearDefault(ref models.PortRef) {
	if ref.NodeID == models.GraphBoundary {
		if port := s.doc.OutputByName(ref.Pin); port != nil {
			port.Default = nil
		}

		return
	}

	if node := s.doc.NodeByID(ref.NodeID); node != nil {
		delete(node.Defaults, ref.Pin)
	}
}

// DeclareGraphInput adds a named graph-level input. It behaves as a
// synthetic output pin feeding data into the graph.
func (s *Session) DeclareGraphInput(ctx context.Context, name string, dataType models.DataType, def *models.Literal) error {
	return s.mutate(ctx, "DeclareGraphInput", name, func() error {
		if s.doc.InputByName(name) != nil {
			return fmt.Errorf("%w: graph input %q", ErrDuplicateName, name)
		}

		if def != nil && !def.AssignableTo(dataType) {
			return fmt.Errorf("%w: default literal kind %s does not fit %s", ErrTypeMismatch, def.Kind, dataType)
		}

		s.doc.Inputs = append(s.doc.Inputs, models.GraphPort{Name: name, Type: dataType, Default: def})

		return nil
	})
}

// DeclareGraphOutput adds a named graph-level output. It behaves as a
// synthetic input pin receiving data leaving the graph.
func (s *Session) DeclareGraphOutput(ctx context.Context, name string, dataType models.DataType, def *models.Literal) error {
	return s.mutate(ctx, "DeclareGraphOutput", name, func() error {
		if s.doc.OutputByName(name) != nil {
			return fmt.Errorf("%w: graph output %q", ErrDuplicateName, name)
		}

		if def != nil && !def.AssignableTo(dataType) {
			return fmt.Errorf("%w: default literal kind %s does not fit %s", ErrTypeMismatch, def.Kind, dataType)
		}

		s.doc.Outputs = append(s.doc.Outputs, models.GraphPort{Name: name, Type: dataType, Default: def})

		return nil
	})
}

// RemoveGraphInput removes a graph-level input and disconnects anything
// wired to it. A graph output sharing the name is untouched.
func (s *Session) RemoveGraphInput(ctx context.Context, name string) error {
	return s.mutate(ctx, "RemoveGraphInput", name, func() error {
		if s.doc.InputByName(name) == nil {
			return fmt.Errorf("%w: graph input %q", ErrUnknownGraphIO, name)
		}

		s.removeBoundaryConnections(name, models.PinDirectionOutput)

		for i := range s.doc.Inputs {
			if s.doc.Inputs[i].Name == name {
				s.doc.Inputs = append(s.doc.Inputs[:i], s.doc.Inputs[i+1:]...)

				break
			}
		}

		return nil
	})
}

// RemoveGraphOutput removes a graph-level output and disconnects anything
// wired to it.
func (s *Session) RemoveGraphOutput(ctx context.Context, name string) error {
	return s.mutate(ctx, "RemoveGraphOutput", name, func() error {
		if s.doc.OutputByName(name) == nil {
			return fmt.Errorf("%w: graph output %q", ErrUnknownGraphIO, name)
		}

		s.removeBoundaryConnections(name, models.PinDirectionInput)

		for i := range s.doc.Outputs {
			if s.doc.Outputs[i].Name == name {
				s.doc.Outputs = append(s.doc.Outputs[:i], s.doc.Outputs[i+1:]...)

				break
			}
		}

		return nil
	})
}

// removeBoundaryConnections drops connections touching one boundary pin.
// Graph inputs feed the graph, so they appear on the From side; graph
// outputs receive data and appear on the To side. Inputs and outputs are
// separate namespaces, so a shared name must not cascade across sides.
func (s *Session) removeBoundaryConnections(pin string, side models.PinDirection) {
	kept := s.doc.Connections[:0]

	for _, c := range s.doc.Connections {
		var match bool

		switch side {
		case models.PinDirectionOutput:
			match = c.From.NodeID == models.GraphBoundary && c.From.Pin == pin
		case models.PinDirectionInput:
			match = c.To.NodeID == models.GraphBoundary && c.To.Pin == pin
		}

		if !match {
			kept = append(kept, c)
		}
	}

	s.doc.Connections = kept
}

// MarkTransient records a successful transient materialization. Called by
// the materializer only.
func (s *Session) MarkTransient(ref models.TransientRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transient = ref
	s.touched = time.Now()

	if s.state != StatePersisted {
		s.state = StateHasTransient
	}
}

// TransientRef returns the instance built from this session, if any.
func (s *Session) TransientRef() models.TransientRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transient
}

// MarkPersisted records a successful materialize-to-storage. Called by the
// materializer only; the state is terminal for that specific path.
func (s *Session) MarkPersisted(ref models.AssetRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.persisted = ref
	s.state = StatePersisted
	s.touched = time.Now()
}

// PersistedRef returns the asset this session was last persisted to.
func (s *Session) PersistedRef() models.AssetRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.persisted
}

// SetSourceAsset records the asset a reopened session was seeded from.
func (s *Session) SetSourceAsset(ref models.AssetRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.source = ref
}

// SourceAsset returns the asset this session was reopened from, if any.
func (s *Session) SourceAsset() models.AssetRef {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.source
}
