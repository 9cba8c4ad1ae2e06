// Package web provides HTTP handlers and REST API endpoints for graph
// authoring sessions.
package web

import (
	"github.com/soundforge/soundforge/pkg/models"
)

// OpenSessionRequest opens a fresh session, or reopens a persisted asset
// when FromAsset is set.
type OpenSessionRequest struct {
	Name      string           `json:"name"                 validate:"required,min=1"`
	AssetType models.AssetType `json:"asset_type,omitempty" validate:"omitempty,oneof=Source Patch Preset"`
	FromAsset *AssetLocation   `json:"from_asset,omitempty"`
}

// AssetLocation identifies a persisted asset by storage location.
type AssetLocation struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required"`
	Path string `json:"path" validate:"required"`
}

// UpdateSessionRequest changes session-level settings.
type UpdateSessionRequest struct {
	AssetType models.AssetType `json:"asset_type,omitempty" validate:"omitempty,oneof=Source Patch Preset"`
}

// AddNodeRequest adds one node by catalog type.
type AddNodeRequest struct {
	Type string `json:"type" validate:"required"`
}

// ConnectionRequest names two pin endpoints in "node:pin" notation.
type ConnectionRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to"   validate:"required"`
}

// SetDefaultRequest sets a literal default on an input endpoint.
type SetDefaultRequest struct {
	Endpoint string         `json:"endpoint" validate:"required"`
	Value    models.Literal `json:"value"`
}

// DeclareIORequest declares a graph-level input or output port.
type DeclareIORequest struct {
	Name    string          `json:"name" validate:"required,min=1"`
	Type    models.DataType `json:"type" validate:"required"`
	Default *models.Literal `json:"default,omitempty"`
}

// BuildTransientRequest materializes a transient instance.
type BuildTransientRequest struct {
	NameHint string `json:"name_hint,omitempty"`
}

// OverwriteTransientRequest pushes the document into the existing
// transient instance.
type OverwriteTransientRequest struct {
	ForceUniqueIdentity bool `json:"force_unique_identity,omitempty"`
}

// BuildAssetRequest persists the session document as a durable asset.
type BuildAssetRequest struct {
	AuthorTag   string `json:"author_tag,omitempty"`
	AssetName   string `json:"asset_name"   validate:"required,min=1"`
	StoragePath string `json:"storage_path" validate:"required,min=1"`
}

// CrossfadeRequest adjusts the live-update blend time.
type CrossfadeRequest struct {
	CrossfadeMS int64 `json:"crossfade_ms" validate:"min=0"`
}

// SessionResponse summarizes one open session.
type SessionResponse struct {
	Name         string                `json:"name"`
	State        string                `json:"state"`
	Document     *models.GraphDocument `json:"document,omitempty"`
	Transient    *models.TransientRef  `json:"transient,omitempty"`
	Persisted    *models.AssetRef      `json:"persisted,omitempty"`
	Auditioning  bool                  `json:"auditioning"`
	LiveUpdating bool                  `json:"live_updating"`
}

// NodeResponse reports a freshly added node.
type NodeResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
