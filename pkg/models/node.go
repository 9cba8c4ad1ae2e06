// Package models defines the core domain models for node-graph authoring.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// NodeTypeID identifies one node-type entry in a catalog. The same
// namespace/name pair may ship several variants (e.g. mono/stereo) and
// several major versions side by side.
type NodeTypeID struct {
	Namespace    string `json:"namespace"               validate:"required"`
	Name         string `json:"name"                    validate:"required"`
	Variant      string `json:"variant,omitempty"`
	MajorVersion int    `json:"major_version,omitempty"`
}

// String renders the ID as "namespace.name[:variant]@vN" for logging and
// catalog keys.
func (id NodeTypeID) String() string {
	var b strings.Builder

	b.WriteString(id.Namespace)
	b.WriteString(".")
	b.WriteString(id.Name)

	if id.Variant != "" {
		b.WriteString(":")
		b.WriteString(id.Variant)
	}

	fmt.Fprintf(&b, "@v%d", id.MajorVersion)

	return b.String()
}

var errInvalidNodeTypeID = errors.New("invalid node type id")

// ParseNodeTypeID parses the "namespace.name[:variant]@vN" form produced by
// String. The version suffix is optional and defaults to 1.
func ParseNodeTypeID(s string) (NodeTypeID, error) {
	id := NodeTypeID{MajorVersion: 1}

	if at := strings.LastIndex(s, "@v"); at >= 0 {
		var version int

		_, err := fmt.Sscanf(s[at:], "@v%d", &version)
		if err != nil || version < 1 {
			return NodeTypeID{}, fmt.Errorf("%w: bad version in %q", errInvalidNodeTypeID, s)
		}

		id.MajorVersion = version
		s = s[:at]
	}

	if colon := strings.LastIndex(s, ":"); colon >= 0 {
		id.Variant = s[colon+1:]
		s = s[:colon]
	}

	dot := strings.Index(s, ".")
	if dot <= 0 || dot == len(s)-1 {
		return NodeTypeID{}, fmt.Errorf("%w: %q must be namespace.name", errInvalidNodeTypeID, s)
	}

	id.Namespace = s[:dot]
	id.Name = s[dot+1:]

	return id, nil
}

// PinDirection represents the direction of data flow for a pin.
type PinDirection string

const (
	PinDirectionInput  PinDirection = "input"
	PinDirectionOutput PinDirection = "output"
)

// PinDecl declares one pin of a node type as read from the catalog.
type PinDecl struct {
	Name     string   `json:"name"               validate:"required"`
	Type     DataType `json:"type"               validate:"required"`
	Required bool     `json:"required,omitempty"`
	Default  *Literal `json:"default,omitempty"`
}

// PinSignature is the ordered input/output pin set a node type declares.
// Immutable once read from the catalog.
type PinSignature struct {
	Inputs  []PinDecl `json:"inputs"`
	Outputs []PinDecl `json:"outputs"`
}

// Input returns the declared input pin with the given name, or nil.
func (s PinSignature) Input(name string) *PinDecl {
	for i := range s.Inputs {
		if s.Inputs[i].Name == name {
			return &s.Inputs[i]
		}
	}

	return nil
}

// Output returns the declared output pin with the given name, or nil.
func (s PinSignature) Output(name string) *PinDecl {
	for i := range s.Outputs {
		if s.Outputs[i].Name == name {
			return &s.Outputs[i]
		}
	}

	return nil
}

// NodeType is one catalog entry: identity plus declared pin signature.
type NodeType struct {
	ID          NodeTypeID   `json:"id"`
	DisplayName string       `json:"display_name"`
	Category    string       `json:"category,omitempty"`
	Description string       `json:"description,omitempty"`
	Signature   PinSignature `json:"signature"`
	Tags        []string     `json:"tags,omitempty"`
}
