// Package graphspec loads declarative JSON graph definitions and replays
// them through a builder session. Validation reports every problem in one
// pass instead of stopping at the first, so a bad file can be fixed in one
// round trip.
package graphspec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/soundforge/soundforge/pkg/builder"
	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/models"
)

// Spec is a whole graph in declarative form. Connection endpoints use
// "node:pin" notation; the graph boundary is addressed as "__graph__:name".
type Spec struct {
	Name        string           `json:"name"                  validate:"required"`
	AssetType   models.AssetType `json:"asset_type,omitempty"`
	Nodes       []NodeSpec       `json:"nodes"                 validate:"dive"`
	Connections []ConnectionSpec `json:"connections,omitempty" validate:"dive"`
	Inputs      []IOSpec         `json:"inputs,omitempty"      validate:"dive"`
	Outputs     []IOSpec         `json:"outputs,omitempty"     validate:"dive"`
	Defaults    []DefaultSpec    `json:"defaults,omitempty"    validate:"dive"`
}

type NodeSpec struct {
	ID   string `json:"id"   validate:"required"`
	Type string `json:"type" validate:"required"`
}

type ConnectionSpec struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to"   validate:"required"`
}

type IOSpec struct {
	Name    string          `json:"name" validate:"required"`
	Type    models.DataType `json:"type" validate:"required"`
	Default *models.Literal `json:"default,omitempty"`
}

type DefaultSpec struct {
	Node  string         `json:"node"  validate:"required"`
	Pin   string         `json:"pin"   validate:"required"`
	Value models.Literal `json:"value"`
}

// Issue is one validation finding. Path points at the offending element.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationError carries every issue found in a spec.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.String()
	}

	return fmt.Sprintf("graph spec invalid (%d issues): %s", len(e.Issues), strings.Join(msgs, "; "))
}

var validate = validator.New()

// Parse decodes and schema-checks a JSON graph spec. Structural problems
// (wrong shapes, missing required fields) surface here; semantic problems
// surface in Validate.
func Parse(data []byte) (*Spec, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(specSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run schema validation: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}

		return nil, fmt.Errorf("graph spec does not match schema: %s", strings.Join(msgs, "; "))
	}

	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode graph spec: %w", err)
	}

	if err := validate.Struct(&spec); err != nil {
		return nil, fmt.Errorf("graph spec failed field validation: %w", err)
	}

	return &spec, nil
}

type endpoint struct {
	node     string
	pin      string
	boundary bool
}

func parseEndpoint(raw string) (endpoint, error) {
	node, pin, ok := strings.Cut(raw, ":")
	if !ok || node == "" || pin == "" {
		return endpoint{}, fmt.Errorf("endpoint must be \"node:pin\", got %q", raw)
	}

	return endpoint{node: node, pin: pin, boundary: node == models.GraphBoundary}, nil
}

// Validate checks the spec against the catalog and reports every issue
// found. A nil return means the spec will replay cleanly.
func (s *Spec) Validate(ctx context.Context, cat catalog.Catalog) error {
	var issues []Issue

	report := func(path, format string, args ...any) {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Resolve node types; nil entries mark nodes whose pins cannot be
	// checked further.
	nodeTypes := make(map[string]*models.NodeType, len(s.Nodes))

	for i, node := range s.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if _, dup := nodeTypes[node.ID]; dup {
			report(path, "duplicate node id %q", node.ID)

			continue
		}

		nodeTypes[node.ID] = nil

		typeID, err := models.ParseNodeTypeID(node.Type)
		if err != nil {
			report(path, "invalid node type %q: %v", node.Type, err)

			continue
		}

		nodeType, err := cat.Lookup(ctx, typeID)
		if err != nil {
			report(path, "unknown node type %q", node.Type)

			continue
		}

		nodeTypes[node.ID] = nodeType
	}

	inputTypes := make(map[string]models.DataType, len(s.Inputs))

	for i, io := range s.Inputs {
		path := fmt.Sprintf("inputs[%d]", i)

		if _, dup := inputTypes[io.Name]; dup {
			report(path, "duplicate graph input %q", io.Name)

			continue
		}

		inputTypes[io.Name] = io.Type

		if io.Default != nil && !io.Default.AssignableTo(io.Type) {
			report(path, "default literal is not assignable to %s", io.Type)
		}
	}

	outputTypes := make(map[string]models.DataType, len(s.Outputs))

	for i, io := range s.Outputs {
		path := fmt.Sprintf("outputs[%d]", i)

		if _, dup := outputTypes[io.Name]; dup {
			report(path, "duplicate graph output %q", io.Name)

			continue
		}

		outputTypes[io.Name] = io.Type
	}

	// resolveFrom/resolveTo return the endpoint data type, or false when
	// the endpoint is broken (already reported).
	resolveFrom := func(path string, ep endpoint) (models.DataType, bool) {
		if ep.boundary {
			dataType, ok := inputTypes[ep.pin]
			if !ok {
				report(path, "unknown graph input %q", ep.pin)
			}

			return dataType, ok
		}

		nodeType, ok := nodeTypes[ep.node]
		if !ok {
			report(path, "unknown node %q", ep.node)

			return "", false
		}

		if nodeType == nil {
			return "", false
		}

		pin := nodeType.Signature.Output(ep.pin)
		if pin == nil {
			report(path, "node %q has no output pin %q", ep.node, ep.pin)

			return "", false
		}

		return pin.Type, true
	}

	resolveTo := func(path string, ep endpoint) (models.DataType, bool) {
		if ep.boundary {
			dataType, ok := outputTypes[ep.pin]
			if !ok {
				report(path, "unknown graph output %q", ep.pin)
			}

			return dataType, ok
		}

		nodeType, ok := nodeTypes[ep.node]
		if !ok {
			report(path, "unknown node %q", ep.node)

			return "", false
		}

		if nodeType == nil {
			return "", false
		}

		pin := nodeType.Signature.Input(ep.pin)
		if pin == nil {
			report(path, "node %q has no input pin %q", ep.node, ep.pin)

			return "", false
		}

		return pin.Type, true
	}

	connectedInputs := make(map[string]int)

	for i, conn := range s.Connections {
		path := fmt.Sprintf("connections[%d]", i)

		from, err := parseEndpoint(conn.From)
		if err != nil {
			report(path, "bad source endpoint: %v", err)

			continue
		}

		to, err := parseEndpoint(conn.To)
		if err != nil {
			report(path, "bad target endpoint: %v", err)

			continue
		}

		fromType, fromOK := resolveFrom(path, from)
		toType, toOK := resolveTo(path, to)

		if fromOK && toOK && !cat.Compatible(fromType, toType) {
			report(path, "type mismatch: %s is not connectable to %s", fromType, toType)
		}

		target := to.node + ":" + to.pin

		connectedInputs[target]++
		if connectedInputs[target] == 2 {
			report(path, "input %q has more than one incoming connection", target)
		}
	}

	for i, def := range s.Defaults {
		path := fmt.Sprintf("defaults[%d]", i)

		nodeType, ok := nodeTypes[def.Node]
		if !ok {
			report(path, "unknown node %q", def.Node)

			continue
		}

		if nodeType == nil {
			continue
		}

		pin := nodeType.Signature.Input(def.Pin)
		if pin == nil {
			report(path, "node %q has no input pin %q", def.Node, def.Pin)

			continue
		}

		if connectedInputs[def.Node+":"+def.Pin] > 0 {
			report(path, "input %q is connected; a default literal would be ignored", def.Node+":"+def.Pin)

			continue
		}

		if !def.Value.AssignableTo(pin.Type) {
			report(path, "literal is not assignable to %s", pin.Type)
		}
	}

	// Required inputs need either a connection, a spec default or a
	// catalog default.
	for i, node := range s.Nodes {
		nodeType := nodeTypes[node.ID]
		if nodeType == nil {
			continue
		}

		for _, pin := range nodeType.Signature.Inputs {
			if !pin.Required || pin.Default != nil {
				continue
			}

			if connectedInputs[node.ID+":"+pin.Name] > 0 {
				continue
			}

			if s.hasDefault(node.ID, pin.Name) {
				continue
			}

			report(fmt.Sprintf("nodes[%d]", i), "required input %q is neither connected nor defaulted", pin.Name)
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	return nil
}

func (s *Spec) hasDefault(node, pin string) bool {
	for _, def := range s.Defaults {
		if def.Node == node && def.Pin == pin {
			return true
		}
	}

	return false
}

// Build validates the spec and replays it into a fresh session.
func (s *Spec) Build(ctx context.Context, cat catalog.Catalog, logger *slog.Logger) (*builder.Session, error) {
	if err := s.Validate(ctx, cat); err != nil {
		return nil, err
	}

	session := builder.NewSession(s.Name, cat, logger)

	if s.AssetType != "" {
		if err := session.SetAssetType(ctx, s.AssetType); err != nil {
			return nil, err
		}
	}

	for _, io := range s.Inputs {
		if err := session.DeclareGraphInput(ctx, io.Name, io.Type, io.Default); err != nil {
			return nil, err
		}
	}

	for _, io := range s.Outputs {
		if err := session.DeclareGraphOutput(ctx, io.Name, io.Type, io.Default); err != nil {
			return nil, err
		}
	}

	handles := make(map[string]builder.NodeHandle, len(s.Nodes))

	for _, node := range s.Nodes {
		typeID, err := models.ParseNodeTypeID(node.Type)
		if err != nil {
			return nil, err
		}

		handle, err := session.AddNode(ctx, typeID)
		if err != nil {
			return nil, err
		}

		handles[node.ID] = handle
	}

	for _, conn := range s.Connections {
		from, _ := parseEndpoint(conn.From)
		to, _ := parseEndpoint(conn.To)

		fromPin, err := s.outputHandle(session, handles, from)
		if err != nil {
			return nil, err
		}

		toPin, err := s.inputHandle(session, handles, to)
		if err != nil {
			return nil, err
		}

		if err := session.Connect(ctx, fromPin, toPin); err != nil {
			return nil, err
		}
	}

	for _, def := range s.Defaults {
		pin, err := session.FindInputByName(handles[def.Node], def.Pin)
		if err != nil {
			return nil, err
		}

		if err := session.SetInputDefault(ctx, pin, def.Value); err != nil {
			return nil, err
		}
	}

	return session, nil
}

func (s *Spec) outputHandle(session *builder.Session, handles map[string]builder.NodeHandle, ep endpoint) (builder.OutputPinHandle, error) {
	if ep.boundary {
		return session.GraphInput(ep.pin)
	}

	return session.FindOutputByName(handles[ep.node], ep.pin)
}

func (s *Spec) inputHandle(session *builder.Session, handles map[string]builder.NodeHandle, ep endpoint) (builder.InputPinHandle, error) {
	if ep.boundary {
		return session.GraphOutput(ep.pin)
	}

	return session.FindInputByName(handles[ep.node], ep.pin)
}
