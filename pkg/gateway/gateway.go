// Package gateway defines the contract the core uses to talk to the remote
// authoring host, plus a framed-TCP client implementation. The core depends
// only on the Gateway interface; everything transport-specific stays here.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soundforge/soundforge/pkg/models"
)

// Standard gateway error kinds. Remote failures always leave the local
// graph document untouched.
var (
	// ErrUnavailable indicates the host could not be reached or timed out.
	// The caller may retry the same materializer call or abort; the core
	// never retries silently.
	ErrUnavailable = errors.New("authoring gateway unavailable")

	// ErrStorageConflict indicates an asset already exists at the target
	// path. Never silently resolved.
	ErrStorageConflict = errors.New("asset already exists at target path")

	// ErrNotATransientInstance indicates an overwrite was attempted against
	// a persisted asset. Caller error, not retried.
	ErrNotATransientInstance = errors.New("not a transient instance")

	// ErrAssetNotFound indicates no persisted asset exists for the ref.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrInstanceNotFound indicates the transient instance no longer exists
	// on the host (e.g. the host restarted).
	ErrInstanceNotFound = errors.New("transient instance not found")

	// ErrSinkNotFound indicates the playback sink no longer exists.
	ErrSinkNotFound = errors.New("sink not found")

	// ErrBadRequest indicates the host rejected a malformed request.
	ErrBadRequest = errors.New("bad request")
)

// GatewayError wraps a remote operation failure with context.
type GatewayError struct {
	Op     string // Operation being performed (e.g. "BuildToAsset")
	Target string // Instance/asset/sink the operation addressed
	Err    error  // Underlying error kind
}

func (e *GatewayError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Target, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsUnavailable checks whether an error indicates the host was unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsStorageConflict checks whether an error indicates a persisted asset
// already occupies the target path.
func IsStorageConflict(err error) bool {
	return errors.Is(err, ErrStorageConflict)
}

// SinkRef identifies a playback/render sink on the host.
type SinkRef struct {
	ID string `json:"id"`
}

// Valid reports whether the ref points at a sink.
func (r SinkRef) Valid() bool {
	return r.ID != ""
}

// BuildAssetRequest carries the parameters of a materialize-to-storage
// call. IdempotencyToken lets the host detect a retried attempt and report
// the original outcome instead of creating a second asset.
type BuildAssetRequest struct {
	AuthorTag        string `json:"author_tag"`
	AssetName        string `json:"asset_name"`
	StoragePath      string `json:"storage_path"`
	IdempotencyToken string `json:"idempotency_token"`
}

// Gateway is the abstract "execute graph operation, get result-or-failure"
// contract against the remote authoring host. Every call is one remote
// round trip, potentially long-latency, cancellable through ctx. The
// connection may be shared by many sessions.
type Gateway interface {
	// BuildTransient realizes a document snapshot as a live in-memory
	// instance. If nameHint is taken in the transient namespace, the host
	// appends a disambiguating suffix rather than failing.
	BuildTransient(ctx context.Context, snapshot *models.GraphDocument, nameHint string) (models.TransientRef, error)

	// OverwriteTransient replaces the contents of an existing transient
	// instance with a new snapshot. Fails with ErrNotATransientInstance if
	// the ref addresses a persisted asset.
	OverwriteTransient(ctx context.Context, ref models.TransientRef, snapshot *models.GraphDocument, forceUniqueIdentity bool) error

	// BuildToAsset creates a new durable asset. One-shot and one-way: if an
	// asset already exists at the exact path the call fails with
	// ErrStorageConflict. Idempotent-safe on retry via the request token.
	BuildToAsset(ctx context.Context, snapshot *models.GraphDocument, req BuildAssetRequest) (models.AssetRef, error)

	// ReopenForEditing loads an existing persisted asset's full document.
	// The entire document is always round-tripped; no partial patch.
	ReopenForEditing(ctx context.Context, ref models.AssetRef) (*models.GraphDocument, error)

	// UpdateLive hot-swaps a running transient instance to a new snapshot
	// using the host's crossfade mechanism rather than a hard cut.
	UpdateLive(ctx context.Context, ref models.TransientRef, snapshot *models.GraphDocument, crossfade time.Duration) error

	// Sink lifecycle for auditioning.
	CreateSink(ctx context.Context, name string) (SinkRef, error)
	BindSink(ctx context.Context, sink SinkRef, ref models.TransientRef) error
	StartSink(ctx context.Context, sink SinkRef) error
	StopSink(ctx context.Context, sink SinkRef) error
	ReleaseSink(ctx context.Context, sink SinkRef) error
}
