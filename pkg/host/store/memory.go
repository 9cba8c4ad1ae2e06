package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps assets in process memory. It is the default backend
// for the reference host and for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	assets map[string]*StoredAsset
}

// NewMemoryStore creates an empty in-memory asset store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assets: make(map[string]*StoredAsset)}
}

// Put implements AssetStore.
func (s *MemoryStore) Put(_ context.Context, asset *StoredAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	location := asset.Ref.Location()
	if _, exists := s.assets[location]; exists {
		return ErrConflict
	}

	stored := *asset
	stored.Document = asset.Document.Clone()
	s.assets[location] = &stored

	return nil
}

// Get implements AssetStore.
func (s *MemoryStore) Get(_ context.Context, location string) (*StoredAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[location]
	if !ok {
		return nil, ErrNotFound
	}

	out := *asset
	out.Document = asset.Document.Clone()

	return &out, nil
}

// List implements AssetStore.
func (s *MemoryStore) List(_ context.Context, pathPrefix string) ([]*StoredAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]string, 0, len(s.assets))

	for location := range s.assets {
		if strings.HasPrefix(location, pathPrefix) {
			locations = append(locations, location)
		}
	}

	sort.Strings(locations)

	out := make([]*StoredAsset, 0, len(locations))

	for _, location := range locations {
		asset := *s.assets[location]
		asset.Document = s.assets[location].Document.Clone()
		out = append(out, &asset)
	}

	return out, nil
}

// HealthCheck implements AssetStore.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Close implements AssetStore.
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}
