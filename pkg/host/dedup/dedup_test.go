package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundforge/soundforge/pkg/host/dedup"
)

func TestMemoryStoreRememberAndLookup(t *testing.T) {
	ctx := context.Background()
	s := dedup.NewMemoryStore()

	location, found, err := s.Lookup(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, location)

	require.NoError(t, s.Remember(ctx, "token-a", "/Game/Audio/Pad", 0))

	location, found, err = s.Lookup(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "/Game/Audio/Pad", location)

	// A different token is unaffected.
	_, found, err = s.Lookup(ctx, "token-b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := dedup.NewMemoryStore()

	require.NoError(t, s.Remember(ctx, "token-a", "/Game/Audio/Pad", 0))
	require.NoError(t, s.Remember(ctx, "token-a", "/Game/Audio/Pad2", 0))

	location, found, err := s.Lookup(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "/Game/Audio/Pad2", location)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := dedup.NewMemoryStore()

	require.NoError(t, s.Remember(ctx, "token-a", "/Game/Audio/Pad", time.Millisecond))

	time.Sleep(10 * time.Millisecond)

	_, found, err := s.Lookup(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, found)
}
