package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundforge/soundforge/pkg/models"
)

const defaultDialTimeout = 10 * time.Second

// TCPClient implements Gateway over the framed JSON protocol. One request
// is in flight at a time; the connection may be shared by many sessions
// (handles are session-scoped, so no session affinity is required).
type TCPClient struct {
	mu     sync.Mutex
	addr   string
	conn   net.Conn
	logger *slog.Logger
}

// NewTCPClient creates a client for the host at addr. The connection is
// established lazily on the first call and re-established after failures.
func NewTCPClient(addr string, logger *slog.Logger) *TCPClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &TCPClient{
		addr:   addr,
		logger: logger.With("module", "gateway", "addr", addr),
	}
}

// Close tears down the connection if one is open.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}

// Ping verifies the host is reachable.
func (c *TCPClient) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, &Request{Action: ActionPing})

	return err
}

func (c *TCPClient) ensureConn(ctx context.Context) (net.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	dialer := net.Dialer{Timeout: defaultDialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	c.conn = conn

	return conn, nil
}

// roundTrip sends one request and reads one response, serialized on the
// connection. Any communication failure drops the connection so the next
// call reconnects instead of reading a stale stream.
func (c *TCPClient) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}

	if err := conn.SetDeadline(deadline); err != nil {
		c.drop(ctx)

		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := WriteFrame(conn, req); err != nil {
		c.drop(ctx)

		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		c.drop(ctx)

		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.Status != "ok" {
		return nil, CodeToError(resp.Code, resp.Message)
	}

	return &resp, nil
}

func (c *TCPClient) drop(ctx context.Context) {
	if c.conn != nil {
		c.logger.WarnContext(ctx, "Host communication failed, dropping connection")

		_ = c.conn.Close()
		c.conn = nil
	}
}

// BuildTransient implements Gateway.
func (c *TCPClient) BuildTransient(ctx context.Context, snapshot *models.GraphDocument, nameHint string) (models.TransientRef, error) {
	resp, err := c.roundTrip(ctx, &Request{
		Action:   ActionBuildTransient,
		Snapshot: snapshot,
		NameHint: nameHint,
	})
	if err != nil {
		return models.TransientRef{}, &GatewayError{Op: "BuildTransient", Target: nameHint, Err: err}
	}

	if resp.Instance == nil {
		return models.TransientRef{}, &GatewayError{Op: "BuildTransient", Target: nameHint, Err: fmt.Errorf("host returned no instance ref")}
	}

	return *resp.Instance, nil
}

// OverwriteTransient implements Gateway.
func (c *TCPClient) OverwriteTransient(ctx context.Context, ref models.TransientRef, snapshot *models.GraphDocument, forceUniqueIdentity bool) error {
	_, err := c.roundTrip(ctx, &Request{
		Action:      ActionOverwriteTransient,
		Instance:    &ref,
		Snapshot:    snapshot,
		ForceUnique: forceUniqueIdentity,
	})
	if err != nil {
		return &GatewayError{Op: "OverwriteTransient", Target: ref.Name, Err: err}
	}

	return nil
}

// BuildToAsset implements Gateway.
func (c *TCPClient) BuildToAsset(ctx context.Context, snapshot *models.GraphDocument, req BuildAssetRequest) (models.AssetRef, error) {
	resp, err := c.roundTrip(ctx, &Request{
		Action:   ActionBuildToAsset,
		Snapshot: snapshot,
		Build:    &req,
	})
	if err != nil {
		return models.AssetRef{}, &GatewayError{
			Op:     "BuildToAsset",
			Target: models.JoinAssetPath(req.StoragePath, req.AssetName),
			Err:    err,
		}
	}

	if resp.Asset == nil {
		return models.AssetRef{}, &GatewayError{Op: "BuildToAsset", Err: fmt.Errorf("host returned no asset ref")}
	}

	return *resp.Asset, nil
}

// ReopenForEditing implements Gateway.
func (c *TCPClient) ReopenForEditing(ctx context.Context, ref models.AssetRef) (*models.GraphDocument, error) {
	resp, err := c.roundTrip(ctx, &Request{
		Action: ActionReopenForEditing,
		Asset:  &ref,
	})
	if err != nil {
		return nil, &GatewayError{Op: "ReopenForEditing", Target: ref.Location(), Err: err}
	}

	if resp.Snapshot == nil {
		return nil, &GatewayError{Op: "ReopenForEditing", Target: ref.Location(), Err: fmt.Errorf("host returned no document")}
	}

	return resp.Snapshot, nil
}

// UpdateLive implements Gateway.
func (c *TCPClient) UpdateLive(ctx context.Context, ref models.TransientRef, snapshot *models.GraphDocument, crossfade time.Duration) error {
	_, err := c.roundTrip(ctx, &Request{
		Action:      ActionUpdateLive,
		Instance:    &ref,
		Snapshot:    snapshot,
		CrossfadeMS: crossfade.Milliseconds(),
	})
	if err != nil {
		return &GatewayError{Op: "UpdateLive", Target: ref.Name, Err: err}
	}

	return nil
}

// CreateSink implements Gateway.
func (c *TCPClient) CreateSink(ctx context.Context, name string) (SinkRef, error) {
	resp, err := c.roundTrip(ctx, &Request{Action: ActionCreateSink, Name: name})
	if err != nil {
		return SinkRef{}, &GatewayError{Op: "CreateSink", Target: name, Err: err}
	}

	if resp.Sink == nil {
		return SinkRef{}, &GatewayError{Op: "CreateSink", Target: name, Err: fmt.Errorf("host returned no sink ref")}
	}

	return *resp.Sink, nil
}

// BindSink implements Gateway.
func (c *TCPClient) BindSink(ctx context.Context, sink SinkRef, ref models.TransientRef) error {
	_, err := c.roundTrip(ctx, &Request{Action: ActionBindSink, Sink: &sink, Instance: &ref})
	if err != nil {
		return &GatewayError{Op: "BindSink", Target: sink.ID, Err: err}
	}

	return nil
}

// StartSink implements Gateway.
func (c *TCPClient) StartSink(ctx context.Context, sink SinkRef) error {
	_, err := c.roundTrip(ctx, &Request{Action: ActionStartSink, Sink: &sink})
	if err != nil {
		return &GatewayError{Op: "StartSink", Target: sink.ID, Err: err}
	}

	return nil
}

// StopSink implements Gateway.
func (c *TCPClient) StopSink(ctx context.Context, sink SinkRef) error {
	_, err := c.roundTrip(ctx, &Request{Action: ActionStopSink, Sink: &sink})
	if err != nil {
		return &GatewayError{Op: "StopSink", Target: sink.ID, Err: err}
	}

	return nil
}

// ReleaseSink implements Gateway.
func (c *TCPClient) ReleaseSink(ctx context.Context, sink SinkRef) error {
	_, err := c.roundTrip(ctx, &Request{Action: ActionReleaseSink, Sink: &sink})
	if err != nil {
		return &GatewayError{Op: "ReleaseSink", Target: sink.ID, Err: err}
	}

	return nil
}
