// Package catalog provides node-type lookup for graph building. The builder
// depends only on the Catalog interface; the set of node types is supplied
// externally and can change between host versions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/soundforge/soundforge/pkg/models"
)

// ErrNotFound indicates the catalog has no entry for the requested type and
// version.
var ErrNotFound = errors.New("node type not registered")

// Catalog resolves node-type identifiers to their declared pin signatures
// and answers data-type compatibility questions.
type Catalog interface {
	// Lookup resolves a fully-qualified node type ID, including its major
	// version. Returns ErrNotFound if the type/version pair is unknown.
	Lookup(ctx context.Context, id models.NodeTypeID) (*models.NodeType, error)

	// Compatible reports whether an output of type from may legally feed an
	// input of type to.
	Compatible(from, to models.DataType) bool
}

// StaticCatalog is an in-memory Catalog backed by maps. Safe for concurrent
// use; registration and lookup may interleave (the host can sync new node
// types from the engine while sessions are open).
type StaticCatalog struct {
	mu     sync.RWMutex
	types  map[string]*models.NodeType
	compat map[models.DataType]map[models.DataType]bool
}

// NewStaticCatalog creates an empty catalog carrying the default data-type
// compatibility table.
func NewStaticCatalog() *StaticCatalog {
	c := &StaticCatalog{
		types:  make(map[string]*models.NodeType),
		compat: make(map[models.DataType]map[models.DataType]bool),
	}

	for from, targets := range defaultCompatibility {
		for _, to := range targets {
			c.allow(from, to)
		}
	}

	return c
}

// Register adds or replaces a node type entry.
func (c *StaticCatalog) Register(nt *models.NodeType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.types[nt.ID.String()] = nt
}

// Allow declares that outputs of type from may feed inputs of type to, in
// addition to the default table.
func (c *StaticCatalog) Allow(from, to models.DataType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.allow(from, to)
}

func (c *StaticCatalog) allow(from, to models.DataType) {
	targets, ok := c.compat[from]
	if !ok {
		targets = make(map[models.DataType]bool)
		c.compat[from] = targets
	}

	targets[to] = true
}

// Lookup implements Catalog.
func (c *StaticCatalog) Lookup(_ context.Context, id models.NodeTypeID) (*models.NodeType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	nt, ok := c.types[id.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nt, nil
}

// Compatible implements Catalog. Identical types are always compatible;
// array types only match exactly.
func (c *StaticCatalog) Compatible(from, to models.DataType) bool {
	if from == to {
		return true
	}

	if from.IsArray() || to.IsArray() {
		return false
	}

	// Named enums all widen into Int32 inputs.
	if from.IsEnum() && to == models.DataTypeInt32 {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.compat[from][to]
}

// Types returns every registered node type, sorted by identifier.
func (c *StaticCatalog) Types() []*models.NodeType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.NodeType, 0, len(c.types))
	for _, nt := range c.types {
		out = append(out, nt)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })

	return out
}

// Len returns the number of registered node types.
func (c *StaticCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.types)
}

// defaultCompatibility mirrors the host engine's widening rules: numeric
// block-rate values widen into audio and time inputs, ints into floats and
// enums, object refs into wave assets.
var defaultCompatibility = map[models.DataType][]models.DataType{
	models.DataTypeAudio:     {models.DataTypeFloat},
	models.DataTypeFloat:     {models.DataTypeAudio, models.DataTypeTime},
	models.DataTypeInt32:     {models.DataTypeFloat},
	models.DataTypeTime:      {models.DataTypeFloat},
	models.DataTypeObject:    {models.DataTypeWaveAsset},
	models.DataTypeWaveAsset: {models.DataTypeObject},
}
