// Package host provides a reference implementation of the authoring host:
// an in-process gateway.Gateway that keeps transient graph instances in
// memory and persists built assets through a pluggable store. It backs the
// standalone host binary and doubles as the test double for everything
// that talks to a remote host.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/host/dedup"
	"github.com/soundforge/soundforge/pkg/host/store"
	"github.com/soundforge/soundforge/pkg/models"
)

// defaultTokenTTL bounds how long a build token stays replayable.
const defaultTokenTTL = 24 * time.Hour

type transientInstance struct {
	ref       models.TransientRef
	identity  string
	doc       *models.GraphDocument
	revision  int
	crossfade time.Duration
}

type sinkState struct {
	ref        gateway.SinkRef
	name       string
	instanceID string
	running    bool
}

// Host holds the authoring-host state: live transient instances, playback
// sinks and the asset store.
type Host struct {
	mu        sync.Mutex
	assets    store.AssetStore
	tokens    dedup.Store
	logger    *slog.Logger
	tokenTTL  time.Duration
	instances map[string]*transientInstance
	names     map[string]struct{}
	sinks     map[string]*sinkState
}

// Option configures a Host.
type Option func(*Host)

// WithTokenTTL overrides how long build idempotency tokens are remembered.
func WithTokenTTL(ttl time.Duration) Option {
	return func(h *Host) {
		h.tokenTTL = ttl
	}
}

// New creates a host over the given asset and token stores.
func New(assets store.AssetStore, tokens dedup.Store, logger *slog.Logger, opts ...Option) *Host {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Host{
		assets:    assets,
		tokens:    tokens,
		logger:    logger.With("module", "host"),
		tokenTTL:  defaultTokenTTL,
		instances: make(map[string]*transientInstance),
		names:     make(map[string]struct{}),
		sinks:     make(map[string]*sinkState),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// uniqueName reserves a free name in the transient namespace, appending a
// numeric suffix when the hint is taken. Callers hold h.mu.
func (h *Host) uniqueName(hint string) string {
	if hint == "" {
		hint = "transient"
	}

	name := hint
	for i := 2; ; i++ {
		if _, taken := h.names[name]; !taken {
			break
		}

		name = fmt.Sprintf("%s-%d", hint, i)
	}

	h.names[name] = struct{}{}

	return name
}

// BuildTransient implements gateway.Gateway.
func (h *Host) BuildTransient(ctx context.Context, snapshot *models.GraphDocument, nameHint string) (models.TransientRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ref := models.TransientRef{
		ID:   uuid.New().String(),
		Name: h.uniqueName(nameHint),
	}

	h.instances[ref.ID] = &transientInstance{
		ref:      ref,
		identity: uuid.New().String(),
		doc:      snapshot.Clone(),
		revision: 1,
	}

	h.logger.InfoContext(ctx, "Built transient instance", "instance_id", ref.ID, "name", ref.Name)

	return ref, nil
}

// OverwriteTransient implements gateway.Gateway.
func (h *Host) OverwriteTransient(ctx context.Context, ref models.TransientRef, snapshot *models.GraphDocument, forceUniqueIdentity bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	instance, ok := h.instances[ref.ID]
	if !ok {
		return gateway.ErrInstanceNotFound
	}

	instance.doc = snapshot.Clone()
	instance.revision++

	if forceUniqueIdentity {
		instance.identity = uuid.New().String()
	}

	h.logger.InfoContext(ctx, "Overwrote transient instance",
		"instance_id", ref.ID, "revision", instance.revision, "force_unique", forceUniqueIdentity)

	return nil
}

// BuildToAsset implements gateway.Gateway. A known idempotency token means
// a previous attempt already created the asset; the recorded outcome is
// returned instead of a conflict.
func (h *Host) BuildToAsset(ctx context.Context, snapshot *models.GraphDocument, req gateway.BuildAssetRequest) (models.AssetRef, error) {
	if err := validateStoragePath(req.StoragePath); err != nil {
		return models.AssetRef{}, err
	}

	if req.IdempotencyToken != "" {
		location, found, err := h.tokens.Lookup(ctx, req.IdempotencyToken)
		if err != nil {
			h.logger.WarnContext(ctx, "Build token lookup failed", "error", err)
		} else if found {
			asset, err := h.assets.Get(ctx, location)
			if err != nil {
				return models.AssetRef{}, fmt.Errorf("failed to load asset for replayed build: %w", err)
			}

			h.logger.InfoContext(ctx, "Replayed build-to-asset via idempotency token", "location", location)

			return asset.Ref, nil
		}
	}

	ref := models.AssetRef{
		ID:   uuid.New().String(),
		Name: req.AssetName,
		Path: req.StoragePath,
	}

	err := h.assets.Put(ctx, &store.StoredAsset{
		Ref:       ref,
		Document:  snapshot.Clone(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.AssetRef{}, gateway.ErrStorageConflict
		}

		return models.AssetRef{}, fmt.Errorf("failed to store asset: %w", err)
	}

	if req.IdempotencyToken != "" {
		if err := h.tokens.Remember(ctx, req.IdempotencyToken, ref.Location(), h.tokenTTL); err != nil {
			h.logger.WarnContext(ctx, "Failed to record build token", "error", err)
		}
	}

	h.logger.InfoContext(ctx, "Built asset", "location", ref.Location(), "author", req.AuthorTag)

	return ref, nil
}

// ReopenForEditing implements gateway.Gateway.
func (h *Host) ReopenForEditing(ctx context.Context, ref models.AssetRef) (*models.GraphDocument, error) {
	asset, err := h.assets.Get(ctx, ref.Location())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, gateway.ErrAssetNotFound
		}

		return nil, fmt.Errorf("failed to load asset: %w", err)
	}

	return asset.Document.Clone(), nil
}

// UpdateLive implements gateway.Gateway.
func (h *Host) UpdateLive(ctx context.Context, ref models.TransientRef, snapshot *models.GraphDocument, crossfade time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	instance, ok := h.instances[ref.ID]
	if !ok {
		return gateway.ErrInstanceNotFound
	}

	instance.doc = snapshot.Clone()
	instance.revision++
	instance.crossfade = crossfade

	h.logger.InfoContext(ctx, "Applied live update",
		"instance_id", ref.ID, "revision", instance.revision, "crossfade", crossfade)

	return nil
}

// CreateSink implements gateway.Gateway.
func (h *Host) CreateSink(_ context.Context, name string) (gateway.SinkRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ref := gateway.SinkRef{ID: uuid.New().String()}
	h.sinks[ref.ID] = &sinkState{ref: ref, name: name}

	return ref, nil
}

// BindSink implements gateway.Gateway.
func (h *Host) BindSink(_ context.Context, sink gateway.SinkRef, ref models.TransientRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.sinks[sink.ID]
	if !ok {
		return gateway.ErrSinkNotFound
	}

	if _, ok := h.instances[ref.ID]; !ok {
		return gateway.ErrInstanceNotFound
	}

	state.instanceID = ref.ID

	return nil
}

// StartSink implements gateway.Gateway.
func (h *Host) StartSink(_ context.Context, sink gateway.SinkRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.sinks[sink.ID]
	if !ok {
		return gateway.ErrSinkNotFound
	}

	if state.instanceID == "" {
		return gateway.ErrInstanceNotFound
	}

	state.running = true

	return nil
}

// StopSink implements gateway.Gateway.
func (h *Host) StopSink(_ context.Context, sink gateway.SinkRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.sinks[sink.ID]
	if !ok {
		return gateway.ErrSinkNotFound
	}

	state.running = false

	return nil
}

// ReleaseSink implements gateway.Gateway.
func (h *Host) ReleaseSink(_ context.Context, sink gateway.SinkRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sinks[sink.ID]; !ok {
		return gateway.ErrSinkNotFound
	}

	delete(h.sinks, sink.ID)

	return nil
}

// InstanceDocument returns the current document of a transient instance.
// Used by tests and the host's inspection endpoints.
func (h *Host) InstanceDocument(id string) (*models.GraphDocument, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	instance, ok := h.instances[id]
	if !ok {
		return nil, false
	}

	return instance.doc.Clone(), true
}

// InstanceRevision returns how many snapshots a transient instance has
// received, including the initial build.
func (h *Host) InstanceRevision(id string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	instance, ok := h.instances[id]
	if !ok {
		return 0, false
	}

	return instance.revision, true
}

// InstanceIdentity returns the internal identity token of a transient
// instance. Overwrites with forceUniqueIdentity rotate it.
func (h *Host) InstanceIdentity(id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	instance, ok := h.instances[id]
	if !ok {
		return "", false
	}

	return instance.identity, true
}

// SinkRunning reports whether a sink exists and is started.
func (h *Host) SinkRunning(id string) (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.sinks[id]
	if !ok {
		return false, false
	}

	return state.running, true
}

// validateStoragePath enforces the host's storage path rules: absolute,
// slash-separated, no parent traversal.
func validateStoragePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: storage path must be absolute: %q", gateway.ErrBadRequest, path)
	}

	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return fmt.Errorf("%w: storage path must not contain '..': %q", gateway.ErrBadRequest, path)
		}
	}

	return nil
}
