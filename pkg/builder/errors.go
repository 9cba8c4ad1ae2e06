// Package builder provides standardized error types for graph mutation
// operations.
package builder

import (
	"errors"
	"fmt"
)

// Standard mutation error kinds. All of them leave the graph document
// unchanged and are caller-recoverable.
var (
	// ErrUnknownNodeType indicates the catalog has no entry for the
	// requested type and version.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrUnknownPin indicates a pin name lookup failed against the node's
	// declared signature.
	ErrUnknownPin = errors.New("unknown pin")

	// ErrUnknownGraphIO indicates no graph-level input/output with the
	// given name exists in the document.
	ErrUnknownGraphIO = errors.New("unknown graph input/output")

	// ErrHandleInvalidated indicates a handle whose owning node or session
	// no longer exists was presented.
	ErrHandleInvalidated = errors.New("handle invalidated")

	// ErrTypeMismatch indicates two pins' data types are neither identical
	// nor declared compatible, or a literal does not match its pin type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInputAlreadyConnected indicates the input pin already carries an
	// incoming connection.
	ErrInputAlreadyConnected = errors.New("input already connected")

	// ErrInputIsConnected indicates a default literal was set on a pin that
	// currently carries a connection; disconnect first.
	ErrInputIsConnected = errors.New("input is connected")

	// ErrNotConnected indicates a disconnect for a pair that is not linked.
	ErrNotConnected = errors.New("not connected")

	// ErrDuplicateName indicates a graph input/output with that name
	// already exists in the document.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrNodeHasDependents indicates a node removal without cascade while
	// the node still has live connections.
	ErrNodeHasDependents = errors.New("node has dependents")
)

// MutationError wraps a mutation failure with session and target context.
type MutationError struct {
	Op      string // Operation being performed (e.g. "Connect", "AddNode")
	Session string // Session name
	Target  string // Node/pin/graph-io the operation addressed
	Err     error  // Underlying error kind
}

func (e *MutationError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s failed for %s in session %s: %v", e.Op, e.Target, e.Session, e.Err)
	}

	return fmt.Sprintf("%s failed in session %s: %v", e.Op, e.Session, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

func (e *MutationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
