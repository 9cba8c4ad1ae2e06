package gateway

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/soundforge/soundforge/pkg/models"
)

// Wire protocol shared by the TCP client and the host server: a 4-byte
// big-endian length prefix followed by a UTF-8 JSON body.

const (
	headerSize     = 4
	maxMessageSize = 16 * 1024 * 1024 // reject anything larger
)

// Actions understood by the host.
const (
	ActionPing               = "ping"
	ActionBuildTransient     = "build_transient"
	ActionOverwriteTransient = "overwrite_transient"
	ActionBuildToAsset       = "build_to_asset"
	ActionReopenForEditing   = "reopen_for_editing"
	ActionUpdateLive         = "update_live"
	ActionCreateSink         = "create_sink"
	ActionBindSink           = "bind_sink"
	ActionStartSink          = "start_sink"
	ActionStopSink           = "stop_sink"
	ActionReleaseSink        = "release_sink"
)

// Error codes carried in error responses, mapped back to sentinel errors on
// the client side.
const (
	CodeStorageConflict  = "storage_conflict"
	CodeAssetNotFound    = "asset_not_found"
	CodeInstanceNotFound = "instance_not_found"
	CodeSinkNotFound     = "sink_not_found"
	CodeNotTransient     = "not_transient"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

// Request is the JSON envelope for one command.
type Request struct {
	Action      string                `json:"action"`
	RequestID   string                `json:"request_id,omitempty"`
	Snapshot    *models.GraphDocument `json:"snapshot,omitempty"`
	NameHint    string                `json:"name_hint,omitempty"`
	Instance    *models.TransientRef  `json:"instance,omitempty"`
	Asset       *models.AssetRef      `json:"asset,omitempty"`
	Sink        *SinkRef              `json:"sink,omitempty"`
	Build       *BuildAssetRequest    `json:"build,omitempty"`
	ForceUnique bool                  `json:"force_unique,omitempty"`
	CrossfadeMS int64                 `json:"crossfade_ms,omitempty"`
	Name        string                `json:"name,omitempty"`
}

// Response is the JSON envelope for one command result.
type Response struct {
	Status   string                `json:"status"` // "ok" or "error"
	Code     string                `json:"code,omitempty"`
	Message  string                `json:"message,omitempty"`
	Instance *models.TransientRef  `json:"instance,omitempty"`
	Asset    *models.AssetRef      `json:"asset,omitempty"`
	Sink     *SinkRef              `json:"sink,omitempty"`
	Snapshot *models.GraphDocument `json:"snapshot,omitempty"`
}

// WriteFrame writes one length-prefixed JSON frame.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	if len(payload) > maxMessageSize {
		return fmt.Errorf("frame too large: %d bytes (max %d)", len(payload), maxMessageSize)
	}

	var header [headerSize]byte

	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	_, err = w.Write(payload)

	return err
}

// ReadFrame reads one length-prefixed JSON frame into v.
func ReadFrame(r io.Reader, v any) error {
	var header [headerSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxMessageSize {
		return fmt.Errorf("frame too large: %d bytes (max %d)", length, maxMessageSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

// CodeToError maps a wire error code to its sentinel error kind.
func CodeToError(code, message string) error {
	var kind error

	switch code {
	case CodeStorageConflict:
		kind = ErrStorageConflict
	case CodeAssetNotFound:
		kind = ErrAssetNotFound
	case CodeInstanceNotFound:
		kind = ErrInstanceNotFound
	case CodeSinkNotFound:
		kind = ErrSinkNotFound
	case CodeNotTransient:
		kind = ErrNotATransientInstance
	case CodeBadRequest:
		kind = ErrBadRequest
	default:
		return fmt.Errorf("host error (%s): %s", code, message)
	}

	return fmt.Errorf("%w: %s", kind, message)
}

// ErrorToCode is the server-side inverse of CodeToError.
func ErrorToCode(err error) string {
	switch {
	case errors.Is(err, ErrStorageConflict):
		return CodeStorageConflict
	case errors.Is(err, ErrAssetNotFound):
		return CodeAssetNotFound
	case errors.Is(err, ErrInstanceNotFound):
		return CodeInstanceNotFound
	case errors.Is(err, ErrSinkNotFound):
		return CodeSinkNotFound
	case errors.Is(err, ErrNotATransientInstance):
		return CodeNotTransient
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
