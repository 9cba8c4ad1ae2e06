package dedup

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	location  string
	expiresAt time.Time
}

// MemoryStore keeps tokens in process memory. Expired entries are dropped
// lazily on lookup.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return "", false, nil
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.entries, token)

		return "", false, nil
	}

	return entry.location, true, nil
}

// Remember implements Store.
func (s *MemoryStore) Remember(_ context.Context, token, location string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{location: location}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.entries[token] = entry

	return nil
}

// Close implements Store.
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}
