// Package store provides asset storage backends for the authoring host.
//
// Asset creation is create-only: a location is written at most once and a
// second write to the same location fails with ErrConflict. Editing an
// existing asset happens through reopen-for-editing followed by a build to
// a new location.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/soundforge/soundforge/pkg/models"
)

var (
	// ErrConflict is returned when an asset already exists at the target location.
	ErrConflict = errors.New("asset already exists at this location")

	// ErrNotFound is returned when no asset exists at the requested location.
	ErrNotFound = errors.New("asset not found")
)

// StoredAsset is one persisted graph asset.
type StoredAsset struct {
	Ref       models.AssetRef       `json:"ref"`
	Document  *models.GraphDocument `json:"document"`
	CreatedAt time.Time             `json:"created_at"`
}

// AssetStore persists built graph assets keyed by their storage location
// (path + name).
type AssetStore interface {
	// Put stores a new asset. It fails with ErrConflict if the location is
	// already taken; existing assets are never overwritten.
	Put(ctx context.Context, asset *StoredAsset) error

	// Get returns the asset at the given location, or ErrNotFound.
	Get(ctx context.Context, location string) (*StoredAsset, error)

	// List returns all assets whose location starts with pathPrefix,
	// ordered by location.
	List(ctx context.Context, pathPrefix string) ([]*StoredAsset, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
