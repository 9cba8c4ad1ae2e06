// Package materializer realizes builder sessions on the authoring host:
// transient in-memory instances for fast iteration, and durable assets as
// the one-way final step. It owns the retry bookkeeping that makes
// build-to-asset safe to retry after a gateway outage.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/soundforge/soundforge/pkg/builder"
	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/models"
	"github.com/soundforge/soundforge/pkg/otelhelper"
)

// ErrInvalidStoragePath is returned before any remote call when the target
// path breaks the storage rules (absolute, no parent traversal, under the
// configured root).
var ErrInvalidStoragePath = errors.New("invalid storage path")

// BuildRequest carries the caller-facing parameters of a build-to-asset.
// The idempotency token is managed internally.
type BuildRequest struct {
	AuthorTag   string
	AssetName   string
	StoragePath string
}

// Materializer drives transient and persisted materialization for builder
// sessions over a shared gateway.
type Materializer struct {
	gw       gateway.Gateway
	catalog  catalog.Catalog
	logger   *slog.Logger
	tracer   trace.Tracer
	pathRoot string

	// tokens holds one idempotency token per (session, location) while the
	// previous attempt failed as unavailable. A retry reuses the token so
	// the host can recognize the attempt; any definite outcome clears it.
	mu     sync.Mutex
	tokens map[string]string
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithTracer attaches an OpenTelemetry tracer. Without it spans are no-ops.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Materializer) {
		m.tracer = tracer
	}
}

// WithPathRoot restricts asset storage paths to the given root
// (e.g. "/Game"). Empty disables the restriction.
func WithPathRoot(root string) Option {
	return func(m *Materializer) {
		m.pathRoot = strings.TrimSuffix(root, "/")
	}
}

// New creates a materializer over the given gateway and catalog.
func New(gw gateway.Gateway, cat catalog.Catalog, logger *slog.Logger, opts ...Option) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Materializer{
		gw:      gw,
		catalog: cat,
		logger:  logger.With("module", "materializer"),
		tracer:  noop.NewTracerProvider().Tracer("materializer"),
		tokens:  make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// BuildTransient realizes the session's current document as a live
// transient instance and records the resulting ref on the session. The
// local document is never touched by a failure.
func (m *Materializer) BuildTransient(ctx context.Context, session *builder.Session, nameHint string) (models.TransientRef, error) {
	snapshot := session.Snapshot()
	if nameHint == "" {
		nameHint = snapshot.Name
	}

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "materializer.build_transient",
		attribute.String(otelhelper.SessionNameKey, session.Name()),
		attribute.String(otelhelper.GraphNameKey, snapshot.Name),
	)
	defer span.End()

	ref, err := m.gw.BuildTransient(ctx, snapshot, nameHint)
	if err != nil {
		otelhelper.SetError(span, err)

		return models.TransientRef{}, err
	}

	session.MarkTransient(ref)
	span.SetAttributes(
		attribute.String(otelhelper.InstanceIDKey, ref.ID),
		attribute.String(otelhelper.InstanceNameKey, ref.Name),
	)
	m.logger.InfoContext(ctx, "Built transient instance",
		"session", session.Name(), "instance_id", ref.ID, "instance_name", ref.Name)

	return ref, nil
}

// OverwriteTransient pushes the session's current document into its
// existing transient instance. Fails with ErrNotATransientInstance when
// the session has never been materialized transiently.
func (m *Materializer) OverwriteTransient(ctx context.Context, session *builder.Session, forceUniqueIdentity bool) error {
	ref := session.TransientRef()
	if ref.ID == "" {
		return &gateway.GatewayError{
			Op:     "OverwriteTransient",
			Target: session.Name(),
			Err:    gateway.ErrNotATransientInstance,
		}
	}

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "materializer.overwrite_transient",
		attribute.String(otelhelper.SessionNameKey, session.Name()),
		attribute.String(otelhelper.InstanceIDKey, ref.ID),
		attribute.Bool("soundforge.force_unique_identity", forceUniqueIdentity),
	)
	defer span.End()

	err := m.gw.OverwriteTransient(ctx, ref, session.Snapshot(), forceUniqueIdentity)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	m.logger.InfoContext(ctx, "Overwrote transient instance",
		"session", session.Name(), "instance_id", ref.ID)

	return nil
}

// BuildToAsset persists the session's current document as a new durable
// asset. One-way: the session stays editable afterwards but further edits
// only reach storage through another BuildToAsset to a new location.
//
// Retry semantics: if an attempt fails because the gateway was
// unavailable, the next call for the same session and location reuses the
// same idempotency token, so a build that actually landed on the host is
// reported as the original success instead of a conflict. A successful or
// definitively failed attempt clears the token; a later deliberate rebuild
// to the same location gets a fresh token and surfaces ErrStorageConflict.
func (m *Materializer) BuildToAsset(ctx context.Context, session *builder.Session, req BuildRequest) (models.AssetRef, error) {
	if err := m.validatePath(req.StoragePath); err != nil {
		return models.AssetRef{}, err
	}

	location := models.JoinAssetPath(req.StoragePath, req.AssetName)
	token := m.takeToken(session.Name(), location)

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "materializer.build_to_asset",
		attribute.String(otelhelper.SessionNameKey, session.Name()),
		attribute.String(otelhelper.AssetPathKey, location),
		attribute.String(otelhelper.BuildTokenKey, token),
	)
	defer span.End()

	ref, err := m.gw.BuildToAsset(ctx, session.Snapshot(), gateway.BuildAssetRequest{
		AuthorTag:        req.AuthorTag,
		AssetName:        req.AssetName,
		StoragePath:      req.StoragePath,
		IdempotencyToken: token,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		if gateway.IsUnavailable(err) {
			m.keepToken(session.Name(), location, token)
		}

		return models.AssetRef{}, err
	}

	session.MarkPersisted(ref)
	m.logger.InfoContext(ctx, "Built asset",
		"session", session.Name(), "location", ref.Location(), "asset_id", ref.ID)

	return ref, nil
}

// ReopenForEditing loads a persisted asset into a fresh session. The new
// session starts Dirty with no transient instance; the source asset ref is
// recorded so a later build can default next to the original.
func (m *Materializer) ReopenForEditing(ctx context.Context, sessionName string, ref models.AssetRef) (*builder.Session, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "materializer.reopen_for_editing",
		attribute.String(otelhelper.SessionNameKey, sessionName),
		attribute.String(otelhelper.AssetPathKey, ref.Location()),
	)
	defer span.End()

	doc, err := m.gw.ReopenForEditing(ctx, ref)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	session, err := builder.NewSessionFromDocument(ctx, sessionName, m.catalog, m.logger, doc)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to rebuild session from asset %s: %w", ref.Location(), err)
	}

	session.SetSourceAsset(ref)
	m.logger.InfoContext(ctx, "Reopened asset for editing",
		"session", sessionName, "location", ref.Location())

	return session, nil
}

func (m *Materializer) validatePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: must be absolute: %q", ErrInvalidStoragePath, path)
	}

	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return fmt.Errorf("%w: must not contain '..': %q", ErrInvalidStoragePath, path)
		}
	}

	if m.pathRoot != "" && path != m.pathRoot && !strings.HasPrefix(path, m.pathRoot+"/") {
		return fmt.Errorf("%w: must be under %s: %q", ErrInvalidStoragePath, m.pathRoot, path)
	}

	return nil
}

// takeToken returns the token of a retried attempt, or mints a fresh one.
// The stored entry is removed either way; keepToken puts it back when the
// attempt ends without a definite outcome.
func (m *Materializer) takeToken(sessionName, location string) string {
	key := sessionName + "\x00" + location

	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.tokens[key]; ok {
		delete(m.tokens, key)

		return token
	}

	return uuid.New().String()
}

func (m *Materializer) keepToken(sessionName, location, token string) {
	key := sessionName + "\x00" + location

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[key] = token
}
