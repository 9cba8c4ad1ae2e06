package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soundforge/soundforge/pkg/builder"
	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/eventbus"
	"github.com/soundforge/soundforge/pkg/events"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/liveupdate"
	"github.com/soundforge/soundforge/pkg/materializer"
	"github.com/soundforge/soundforge/pkg/models"
)

// defaultIdleTTL is how long a session may sit untouched before the reaper
// closes it.
const defaultIdleTTL = 30 * time.Minute

type managedSession struct {
	session *builder.Session
	bridge  *liveupdate.Bridge
}

// SessionInfo is a summary of one open session.
type SessionInfo struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	LastActivity time.Time `json:"last_activity"`
}

// Sessions manages the registry of open builder sessions: open, look up,
// close, plus the idle reaper. Session names are unique while open.
type Sessions struct {
	mu        sync.RWMutex
	sessions  map[string]*managedSession
	catalog   catalog.Catalog
	gw        gateway.Gateway
	mat       *materializer.Materializer
	logger    *slog.Logger
	publisher eventbus.EventPublisher
	cron      *cron.Cron
	idleTTL   time.Duration
}

// SessionsOption configures a Sessions service.
type SessionsOption func(*Sessions)

// WithSessionPublisher attaches an event publisher for session lifecycle
// events.
func WithSessionPublisher(pub eventbus.EventPublisher) SessionsOption {
	return func(s *Sessions) {
		s.publisher = pub
	}
}

// WithIdleTTL overrides how long inactive sessions are kept open.
func WithIdleTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		s.idleTTL = ttl
	}
}

// NewSessions creates the session registry.
func NewSessions(cat catalog.Catalog, gw gateway.Gateway, mat *materializer.Materializer, logger *slog.Logger, opts ...SessionsOption) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sessions{
		sessions: make(map[string]*managedSession),
		catalog:  cat,
		gw:       gw,
		mat:      mat,
		logger:   logger.With("module", "sessions"),
		idleTTL:  defaultIdleTTL,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open creates a fresh, empty session.
func (s *Sessions) Open(ctx context.Context, name string, assetType models.AssetType) (*builder.Session, error) {
	if name == "" {
		return nil, &ServiceError{Op: "OpenSession", Err: ErrSessionNameRequired}
	}

	session := builder.NewSession(name, s.catalog, s.logger)

	if assetType != "" {
		if err := session.SetAssetType(ctx, assetType); err != nil {
			return nil, err
		}
	}

	if err := s.register(name, session); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session opened", "session", name, "asset_type", session.Snapshot().AssetType)
	s.publish(ctx, name, events.SessionOpened{
		BaseEvent: events.NewBaseEvent(events.SessionOpenedEvent, name),
		AssetType: session.Snapshot().AssetType,
	})

	return session, nil
}

// OpenFromAsset reopens a persisted asset as a new editable session.
func (s *Sessions) OpenFromAsset(ctx context.Context, name string, ref models.AssetRef) (*builder.Session, error) {
	if name == "" {
		return nil, &ServiceError{Op: "OpenSessionFromAsset", Err: ErrSessionNameRequired}
	}

	// Reserve the name before the remote round trip so two concurrent
	// opens cannot both win.
	s.mu.Lock()
	if _, taken := s.sessions[name]; taken {
		s.mu.Unlock()

		return nil, &ServiceError{Op: "OpenSessionFromAsset", Session: name, Err: ErrSessionNameTaken}
	}

	s.sessions[name] = nil
	s.mu.Unlock()

	session, err := s.mat.ReopenForEditing(ctx, name, ref)
	if err != nil {
		s.mu.Lock()
		delete(s.sessions, name)
		s.mu.Unlock()

		return nil, err
	}

	bridge := s.attach(name, session)

	s.mu.Lock()
	s.sessions[name] = &managedSession{session: session, bridge: bridge}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Session opened from asset", "session", name, "location", ref.Location())
	s.publish(ctx, name, events.SessionOpened{
		BaseEvent: events.NewBaseEvent(events.SessionOpenedEvent, name),
		AssetType: session.Snapshot().AssetType,
		FromAsset: ref.Location(),
	})
	s.publish(ctx, name, events.AssetReopened{
		BaseEvent: events.NewBaseEvent(events.AssetReopenedEvent, name),
		Location:  ref.Location(),
	})

	return session, nil
}

// Adopt registers a session that was constructed elsewhere, such as one
// built from a declarative graph spec.
func (s *Sessions) Adopt(ctx context.Context, session *builder.Session) error {
	name := session.Name()
	if name == "" {
		return &ServiceError{Op: "AdoptSession", Err: ErrSessionNameRequired}
	}

	if err := s.register(name, session); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Session adopted", "session", name)
	s.publish(ctx, name, events.SessionOpened{
		BaseEvent: events.NewBaseEvent(events.SessionOpenedEvent, name),
		AssetType: session.Snapshot().AssetType,
	})

	return nil
}

func (s *Sessions) register(name string, session *builder.Session) error {
	bridge := s.attach(name, session)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.sessions[name]; taken {
		return &ServiceError{Op: "OpenSession", Session: name, Err: ErrSessionNameTaken}
	}

	s.sessions[name] = &managedSession{session: session, bridge: bridge}

	return nil
}

func (s *Sessions) attach(name string, session *builder.Session) *liveupdate.Bridge {
	var opts []liveupdate.Option
	if s.publisher != nil {
		opts = append(opts, liveupdate.WithPublisher(s.publisher))
	}

	bridge := liveupdate.NewBridge(s.gw, name, s.logger, opts...)
	session.AttachMirror(bridge)

	return bridge
}

// Get returns the open session with the given name.
func (s *Sessions) Get(name string) (*builder.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	managed, ok := s.sessions[name]
	if !ok || managed == nil {
		return nil, &ServiceError{Op: "GetSession", Session: name, Err: ErrSessionNotFound}
	}

	return managed.session, nil
}

// Bridge returns the live-update bridge attached to the named session.
func (s *Sessions) Bridge(name string) (*liveupdate.Bridge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	managed, ok := s.sessions[name]
	if !ok || managed == nil {
		return nil, &ServiceError{Op: "GetBridge", Session: name, Err: ErrSessionNotFound}
	}

	return managed.bridge, nil
}

// List returns a summary of all open sessions, sorted by name.
func (s *Sessions) List() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(s.sessions))

	for name, managed := range s.sessions {
		if managed == nil {
			continue
		}

		infos = append(infos, SessionInfo{
			Name:         name,
			State:        string(managed.session.State()),
			LastActivity: managed.session.LastActivity(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// Close removes a session from the registry. Any transient instance on the
// host is left to the host's own lifecycle; local handles die with the
// session.
func (s *Sessions) Close(ctx context.Context, name string) error {
	s.mu.Lock()
	managed, ok := s.sessions[name]
	if ok {
		delete(s.sessions, name)
	}
	s.mu.Unlock()

	if !ok || managed == nil {
		return &ServiceError{Op: "CloseSession", Session: name, Err: ErrSessionNotFound}
	}

	s.logger.InfoContext(ctx, "Session closed", "session", name, "state", managed.session.State())
	s.publish(ctx, name, events.SessionClosed{
		BaseEvent: events.NewBaseEvent(events.SessionClosedEvent, name),
		State:     string(managed.session.State()),
	})

	return nil
}

// StartIdleReaper schedules a minutely sweep that closes sessions whose
// last activity is older than the idle TTL.
func (s *Sessions) StartIdleReaper(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc("@every 1m", func() {
		s.reapIdle(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Idle session reaper started", "ttl", s.idleTTL)

	return nil
}

// StopIdleReaper stops the sweep; a sweep in progress finishes first.
func (s *Sessions) StopIdleReaper() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// ReapIdleNow runs one reaper sweep immediately.
func (s *Sessions) ReapIdleNow(ctx context.Context) {
	s.reapIdle(ctx)
}

func (s *Sessions) reapIdle(ctx context.Context) {
	cutoff := time.Now().Add(-s.idleTTL)

	var idle []string

	s.mu.RLock()
	for name, managed := range s.sessions {
		if managed != nil && managed.session.LastActivity().Before(cutoff) {
			idle = append(idle, name)
		}
	}
	s.mu.RUnlock()

	for _, name := range idle {
		s.logger.InfoContext(ctx, "Closing idle session", "session", name)

		if err := s.Close(ctx, name); err != nil {
			s.logger.WarnContext(ctx, "Failed to close idle session", "session", name, "error", err)
		}
	}
}

func (s *Sessions) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish session event", "error", err)
	}
}
