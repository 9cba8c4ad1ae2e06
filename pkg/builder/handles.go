package builder

import (
	"fmt"
	"sync/atomic"

	"github.com/soundforge/soundforge/pkg/models"
)

// Handles are generation-checked arena indices. The remote host's graph
// representation is not addressable from the caller's process, so handles
// stand in for nodes and pins; a stale generation catches use-after-remove
// at the API boundary, and the owner token catches handles crossing between
// sessions.

var ownerCounter atomic.Uint32

// NodeHandle denotes one instantiated node within one session. Created by
// AddNode, invalidated by RemoveNode, never reused within the session.
type NodeHandle struct {
	owner uint32
	index uint32
	gen   uint32
}

// IsZero reports whether the handle was never issued by a session.
func (h NodeHandle) IsZero() bool {
	return h.owner == 0
}

func (h NodeHandle) String() string {
	return fmt.Sprintf("node(%d.%d#%d)", h.owner, h.index, h.gen)
}

// InputPinHandle denotes one input pin of one node, or a graph-level
// output (which receives data leaving the graph).
type InputPinHandle struct {
	node     NodeHandle
	name     string
	boundary bool
}

// Name returns the pin name the handle was resolved with.
func (h InputPinHandle) Name() string { return h.name }

// OutputPinHandle denotes one output pin of one node, or a graph-level
// input (which feeds data into the graph).
type OutputPinHandle struct {
	node     NodeHandle
	name     string
	boundary bool
}

// Name returns the pin name the handle was resolved with.
func (h OutputPinHandle) Name() string { return h.name }

// nodeState is the arena payload for one live node.
type nodeState struct {
	id  string // stable document node ID
	typ *models.NodeType
}

type slot struct {
	gen  uint32
	node *nodeState // nil once invalidated
}

// handleRegistry is the arena. Slots are append-only so indices are never
// reused; invalidation bumps the generation and drops the payload.
type handleRegistry struct {
	owner uint32
	slots []slot
}

func newHandleRegistry() *handleRegistry {
	return &handleRegistry{owner: ownerCounter.Add(1)}
}

func (r *handleRegistry) add(node *nodeState) NodeHandle {
	r.slots = append(r.slots, slot{gen: 1, node: node})

	return NodeHandle{
		owner: r.owner,
		index: uint32(len(r.slots) - 1),
		gen:   1,
	}
}

func (r *handleRegistry) resolve(h NodeHandle) (*nodeState, error) {
	if h.owner != r.owner {
		return nil, fmt.Errorf("%w: handle belongs to another session", ErrHandleInvalidated)
	}

	if int(h.index) >= len(r.slots) {
		return nil, ErrHandleInvalidated
	}

	s := r.slots[h.index]
	if s.node == nil || s.gen != h.gen {
		return nil, ErrHandleInvalidated
	}

	return s.node, nil
}

func (r *handleRegistry) invalidate(h NodeHandle) error {
	if _, err := r.resolve(h); err != nil {
		return err
	}

	r.slots[h.index].gen++
	r.slots[h.index].node = nil

	return nil
}
