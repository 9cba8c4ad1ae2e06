package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/models"
)

// Server exposes a Host over the framed TCP wire protocol.
type Server struct {
	host     *Host
	logger   *slog.Logger
	listener net.Listener
	wg       sync.WaitGroup
	closed   chan struct{}
}

// NewServer creates a server for the given host.
func NewServer(host *Host, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		host:   host,
		logger: logger.With("module", "host_server"),
		closed: make(chan struct{}),
	}
}

// Listen binds the server to addr.
func (s *Server) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener

	return nil
}

// Addr returns the bound address. Useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed or ctx is
// cancelled. Each connection handles one request at a time.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening; call Listen first")
	}

	s.logger.InfoContext(ctx, "Host server listening", "addr", s.listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			_ = s.listener.Close()
		case <-s.closed:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()

				return nil
			case <-s.closed:
				s.wg.Wait()

				return nil
			default:
				return fmt.Errorf("accept failed: %w", err)
			}
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting and waits for in-flight connections.
func (s *Server) Close() error {
	close(s.closed)

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.wg.Wait()

	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.DebugContext(ctx, "Client connected", "remote", remote)

	for {
		var req gateway.Request
		if err := gateway.ReadFrame(conn, &req); err != nil {
			s.logger.DebugContext(ctx, "Client disconnected", "remote", remote)

			return
		}

		resp := s.dispatch(ctx, &req)

		if err := gateway.WriteFrame(conn, resp); err != nil {
			s.logger.WarnContext(ctx, "Failed to write response", "remote", remote, "error", err)

			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req *gateway.Request) *gateway.Response {
	resp, err := s.handle(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "Request failed",
			"action", req.Action, "request_id", req.RequestID, "error", err)

		return &gateway.Response{
			Status:  "error",
			Code:    gateway.ErrorToCode(err),
			Message: err.Error(),
		}
	}

	resp.Status = "ok"

	return resp
}

func (s *Server) handle(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	switch req.Action {
	case gateway.ActionPing:
		return &gateway.Response{}, nil

	case gateway.ActionBuildTransient:
		if req.Snapshot == nil {
			return nil, fmt.Errorf("%w: build_transient requires a snapshot", gateway.ErrBadRequest)
		}

		ref, err := s.host.BuildTransient(ctx, req.Snapshot, req.NameHint)
		if err != nil {
			return nil, err
		}

		return &gateway.Response{Instance: &ref}, nil

	case gateway.ActionOverwriteTransient:
		if req.Instance == nil || req.Snapshot == nil {
			return nil, fmt.Errorf("%w: overwrite_transient requires an instance and a snapshot", gateway.ErrBadRequest)
		}

		err := s.host.OverwriteTransient(ctx, *req.Instance, req.Snapshot, req.ForceUnique)
		if err != nil {
			return nil, err
		}

		return &gateway.Response{}, nil

	case gateway.ActionBuildToAsset:
		if req.Snapshot == nil || req.Build == nil {
			return nil, fmt.Errorf("%w: build_to_asset requires a snapshot and build parameters", gateway.ErrBadRequest)
		}

		ref, err := s.host.BuildToAsset(ctx, req.Snapshot, *req.Build)
		if err != nil {
			return nil, err
		}

		return &gateway.Response{Asset: &ref}, nil

	case gateway.ActionReopenForEditing:
		if req.Asset == nil {
			return nil, fmt.Errorf("%w: reopen_for_editing requires an asset ref", gateway.ErrBadRequest)
		}

		doc, err := s.host.ReopenForEditing(ctx, *req.Asset)
		if err != nil {
			return nil, err
		}

		return &gateway.Response{Snapshot: doc}, nil

	case gateway.ActionUpdateLive:
		if req.Instance == nil || req.Snapshot == nil {
			return nil, fmt.Errorf("%w: update_live requires an instance and a snapshot", gateway.ErrBadRequest)
		}

		crossfade := time.Duration(req.CrossfadeMS) * time.Millisecond

		err := s.host.UpdateLive(ctx, *req.Instance, req.Snapshot, crossfade)
		if err != nil {
			return nil, err
		}

		return &gateway.Response{}, nil

	case gateway.ActionCreateSink:
		ref, err := s.host.CreateSink(ctx, req.Name)
		if err != nil {
			return nil, err
		}

		return &gateway.Response{Sink: &ref}, nil

	case gateway.ActionBindSink:
		if req.Sink == nil || req.Instance == nil {
			return nil, fmt.Errorf("%w: bind_sink requires a sink and an instance", gateway.ErrBadRequest)
		}

		err := s.host.BindSink(ctx, *req.Sink, models.TransientRef{ID: req.Instance.ID, Name: req.Instance.Name})
		if err != nil {
			return nil, err
		}

		return &gateway.Response{}, nil

	case gateway.ActionStartSink:
		return s.sinkOp(ctx, req, s.host.StartSink)

	case gateway.ActionStopSink:
		return s.sinkOp(ctx, req, s.host.StopSink)

	case gateway.ActionReleaseSink:
		return s.sinkOp(ctx, req, s.host.ReleaseSink)

	default:
		return nil, fmt.Errorf("%w: unknown action %q", gateway.ErrBadRequest, req.Action)
	}
}

func (s *Server) sinkOp(ctx context.Context, req *gateway.Request, op func(context.Context, gateway.SinkRef) error) (*gateway.Response, error) {
	if req.Sink == nil {
		return nil, fmt.Errorf("%w: sink operation requires a sink ref", gateway.ErrBadRequest)
	}

	if err := op(ctx, *req.Sink); err != nil {
		return nil, err
	}

	return &gateway.Response{}, nil
}
