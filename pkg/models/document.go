package models

// GraphBoundary is the sentinel node ID that stands for the graph itself in
// connections: graph-level inputs act as output pins of the boundary, graph
// outputs as input pins.
const GraphBoundary = "__graph__"

// AssetType classifies what a graph materializes into on the remote host.
type AssetType string

const (
	AssetTypeSource AssetType = "Source" // self-contained, playable
	AssetTypePatch  AssetType = "Patch"  // reusable subgraph, not playable
	AssetTypePreset AssetType = "Preset" // read-only override of a parent
)

// ValidAssetType reports whether t is one of the known asset types.
func ValidAssetType(t AssetType) bool {
	switch t {
	case AssetTypeSource, AssetTypePatch, AssetTypePreset:
		return true
	default:
		return false
	}
}

// PortRef addresses one pin of one node inside a document. NodeID may be
// GraphBoundary for graph-level IO.
type PortRef struct {
	NodeID string `json:"node_id" validate:"required"`
	Pin    string `json:"pin"     validate:"required"`
}

func (p PortRef) String() string {
	return p.NodeID + ":" + p.Pin
}

// Connection is an ordered output→input pair. An input pin carries at most
// one connection; an output pin may feed many.
type Connection struct {
	From PortRef `json:"from"`
	To   PortRef `json:"to"`
}

// GraphNode is one instantiated node in a document.
type GraphNode struct {
	ID        string             `json:"id"                   validate:"required"`
	Type      NodeTypeID         `json:"type"`
	PositionX int                `json:"position_x,omitempty"`
	PositionY int                `json:"position_y,omitempty"`
	Defaults  map[string]Literal `json:"defaults,omitempty"`
}

// GraphPort is a named graph-level input or output.
type GraphPort struct {
	Name    string   `json:"name"              validate:"required"`
	Type    DataType `json:"type"              validate:"required"`
	Default *Literal `json:"default,omitempty"`
}

// GraphDocument is the in-memory representation of one graph under
// construction: nodes, connections, graph-level IO and per-pin default
// literals. Owned exclusively by its builder session; materialization
// always works on a Clone.
type GraphDocument struct {
	Name        string        `json:"name"`
	AssetType   AssetType     `json:"asset_type"`
	Nodes       []*GraphNode  `json:"nodes"`
	Connections []*Connection `json:"connections"`
	Inputs      []GraphPort   `json:"inputs,omitempty"`
	Outputs     []GraphPort   `json:"outputs,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (d *GraphDocument) NodeByID(id string) *GraphNode {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// IncomingConnection returns the connection feeding the given input pin,
// or nil. At most one exists (single-writer fan-in).
func (d *GraphDocument) IncomingConnection(to PortRef) *Connection {
	for _, c := range d.Connections {
		if c.To == to {
			return c
		}
	}

	return nil
}

// InputByName returns the graph-level input with the given name, or nil.
func (d *GraphDocument) InputByName(name string) *GraphPort {
	for i := range d.Inputs {
		if d.Inputs[i].Name == name {
			return &d.Inputs[i]
		}
	}

	return nil
}

// OutputByName returns the graph-level output with the given name, or nil.
func (d *GraphDocument) OutputByName(name string) *GraphPort {
	for i := range d.Outputs {
		if d.Outputs[i].Name == name {
			return &d.Outputs[i]
		}
	}

	return nil
}

// Clone deep-copies the document so a snapshot can cross the gateway while
// the session keeps editing.
func (d *GraphDocument) Clone() *GraphDocument {
	out := &GraphDocument{
		Name:      d.Name,
		AssetType: d.AssetType,
	}

	if d.Nodes != nil {
		out.Nodes = make([]*GraphNode, len(d.Nodes))
		for i, n := range d.Nodes {
			cn := *n
			if n.Defaults != nil {
				cn.Defaults = make(map[string]Literal, len(n.Defaults))
				for k, v := range n.Defaults {
					cn.Defaults[k] = v.clone()
				}
			}

			out.Nodes[i] = &cn
		}
	}

	if d.Connections != nil {
		out.Connections = make([]*Connection, len(d.Connections))
		for i, c := range d.Connections {
			cc := *c
			out.Connections[i] = &cc
		}
	}

	out.Inputs = clonePorts(d.Inputs)
	out.Outputs = clonePorts(d.Outputs)

	return out
}

func clonePorts(ports []GraphPort) []GraphPort {
	if ports == nil {
		return nil
	}

	out := make([]GraphPort, len(ports))
	for i, p := range ports {
		out[i] = p
		if p.Default != nil {
			def := p.Default.clone()
			out[i].Default = &def
		}
	}

	return out
}

// StructurallyEqual compares two documents ignoring node order and editor
// positions. Used to verify ReopenForEditing round trips.
func (d *GraphDocument) StructurallyEqual(other *GraphDocument) bool {
	if d.AssetType != other.AssetType ||
		len(d.Nodes) != len(other.Nodes) ||
		len(d.Connections) != len(other.Connections) ||
		len(d.Inputs) != len(other.Inputs) ||
		len(d.Outputs) != len(other.Outputs) {
		return false
	}

	for _, n := range d.Nodes {
		o := other.NodeByID(n.ID)
		if o == nil || o.Type != n.Type || len(o.Defaults) != len(n.Defaults) {
			return false
		}

		for name, lit := range n.Defaults {
			olit, ok := o.Defaults[name]
			if !ok || !olit.Equal(lit) {
				return false
			}
		}
	}

	for _, c := range d.Connections {
		found := false

		for _, oc := range other.Connections {
			if *oc == *c {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return equalPorts(d.Inputs, other.Inputs) && equalPorts(d.Outputs, other.Outputs)
}

func equalPorts(a, b []GraphPort) bool {
	for i := range a {
		var match *GraphPort

		for j := range b {
			if b[j].Name == a[i].Name {
				match = &b[j]

				break
			}
		}

		if match == nil || match.Type != a[i].Type {
			return false
		}

		switch {
		case a[i].Default == nil && match.Default == nil:
		case a[i].Default != nil && match.Default != nil && a[i].Default.Equal(*match.Default):
		default:
			return false
		}
	}

	return true
}
