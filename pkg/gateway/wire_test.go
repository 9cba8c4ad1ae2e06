package gateway_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/models"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	req := gateway.Request{
		Action:    gateway.ActionBuildTransient,
		RequestID: "req-1",
		NameHint:  "preview",
		Snapshot: &models.GraphDocument{
			Name:      "preview",
			AssetType: models.AssetTypeSource,
		},
	}

	require.NoError(t, gateway.WriteFrame(&buf, req))

	// The header carries the body length in big-endian.
	header := buf.Bytes()[:4]
	assert.Equal(t, uint32(buf.Len()-4), binary.BigEndian.Uint32(header))

	var got gateway.Request
	require.NoError(t, gateway.ReadFrame(&buf, &got))

	assert.Equal(t, gateway.ActionBuildTransient, got.Action)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "preview", got.NameHint)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, models.AssetTypeSource, got.Snapshot.AssetType)
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, gateway.WriteFrame(&buf, gateway.Request{Action: gateway.ActionPing}))
	require.NoError(t, gateway.WriteFrame(&buf, gateway.Response{Status: "ok"}))

	var req gateway.Request
	require.NoError(t, gateway.ReadFrame(&buf, &req))
	assert.Equal(t, gateway.ActionPing, req.Action)

	var resp gateway.Response
	require.NoError(t, gateway.ReadFrame(&buf, &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 64*1024*1024)
	buf.Write(header)

	var out gateway.Request
	err := gateway.ReadFrame(&buf, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame too large")
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 100)
	buf.Write(header)
	buf.WriteString(`{"action":`)

	var out gateway.Request
	require.Error(t, gateway.ReadFrame(&buf, &out))
}

func TestErrorCodeRoundTrip(t *testing.T) {
	sentinels := []error{
		gateway.ErrStorageConflict,
		gateway.ErrAssetNotFound,
		gateway.ErrInstanceNotFound,
		gateway.ErrSinkNotFound,
		gateway.ErrNotATransientInstance,
		gateway.ErrBadRequest,
	}

	for _, sentinel := range sentinels {
		t.Run(sentinel.Error(), func(t *testing.T) {
			code := gateway.ErrorToCode(sentinel)
			require.NotEqual(t, gateway.CodeInternal, code)

			err := gateway.CodeToError(code, "details")
			assert.ErrorIs(t, err, sentinel)
			assert.Contains(t, err.Error(), "details")
		})
	}
}

func TestErrorToCodeUnknown(t *testing.T) {
	assert.Equal(t, gateway.CodeInternal, gateway.ErrorToCode(errors.New("boom")))
}

func TestCodeToErrorUnknownCode(t *testing.T) {
	err := gateway.CodeToError("mystery", "what happened")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
	assert.Contains(t, err.Error(), "what happened")
}

func TestGatewayError(t *testing.T) {
	err := &gateway.GatewayError{
		Op:     "BuildToAsset",
		Target: "/Game/Audio/Pad",
		Err:    gateway.ErrStorageConflict,
	}

	assert.ErrorIs(t, err, gateway.ErrStorageConflict)
	assert.True(t, gateway.IsStorageConflict(err))
	assert.False(t, gateway.IsUnavailable(err))
	assert.Contains(t, err.Error(), "BuildToAsset")
	assert.Contains(t, err.Error(), "/Game/Audio/Pad")

	bare := &gateway.GatewayError{Op: "Ping", Err: gateway.ErrUnavailable}
	assert.True(t, gateway.IsUnavailable(bare))
	assert.Contains(t, bare.Error(), "Ping failed")
}
