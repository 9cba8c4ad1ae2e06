// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/soundforge/soundforge/pkg/host/dedup"
	"github.com/soundforge/soundforge/pkg/host/store"
)

// NewAssetStore builds an asset store from a storage URL. postgres:// and
// postgresql:// select PostgreSQL, memory:// selects the in-memory store,
// anything else is treated as a filesystem root (with or without a file://
// prefix).
func NewAssetStore(ctx context.Context, logger *slog.Logger, storageURL string) store.AssetStore {
	switch {
	case strings.HasPrefix(storageURL, "postgres://"), strings.HasPrefix(storageURL, "postgresql://"):
		pg, err := store.NewPostgresStore(ctx, logger, storageURL)
		if err != nil {
			panic(err)
		}

		return pg
	case storageURL == "memory://", storageURL == "memory":
		return store.NewMemoryStore()
	default:
		return store.NewFileStore(strings.TrimPrefix(storageURL, "file://"))
	}
}

// NewDedupStore builds a build-token store. A redis:// URL selects Redis,
// an empty string selects the in-memory store.
func NewDedupStore(ctx context.Context, dedupURL string) dedup.Store {
	if dedupURL == "" {
		return dedup.NewMemoryStore()
	}

	rs, err := dedup.NewRedisStoreFromURL(ctx, dedupURL)
	if err != nil {
		panic(err)
	}

	return rs
}
