package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore persists assets as JSON files under a root directory. The
// asset location maps directly onto the directory layout, so
// "/Game/Audio/Pad" lands in <root>/Game/Audio/Pad.json.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed asset store rooted at root. The
// "file://" scheme prefix is accepted and stripped.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.Replace(root, "file://", "", 1)}
}

func (s *FileStore) pathFor(location string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(location, "/"))+".json")
}

// Put implements AssetStore.
func (s *FileStore) Put(_ context.Context, asset *StoredAsset) error {
	path := s.pathFor(asset.Ref.Location())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}

	// O_EXCL makes creation atomic: two concurrent builds to the same
	// location cannot both succeed.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrConflict
		}

		return fmt.Errorf("failed to create asset file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(asset); err != nil {
		return fmt.Errorf("failed to encode asset: %w", err)
	}

	return nil
}

// Get implements AssetStore.
func (s *FileStore) Get(_ context.Context, location string) (*StoredAsset, error) {
	data, err := os.ReadFile(s.pathFor(location))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to read asset file: %w", err)
	}

	var asset StoredAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("failed to decode asset file: %w", err)
	}

	return &asset, nil
}

// List implements AssetStore.
func (s *FileStore) List(ctx context.Context, pathPrefix string) ([]*StoredAsset, error) {
	var locations []string

	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		location := "/" + strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(location, pathPrefix) {
			locations = append(locations, location)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to walk asset root: %w", err)
	}

	sort.Strings(locations)

	out := make([]*StoredAsset, 0, len(locations))

	for _, location := range locations {
		asset, err := s.Get(ctx, location)
		if err != nil {
			return nil, err
		}

		out = append(out, asset)
	}

	return out, nil
}

// HealthCheck implements AssetStore.
func (s *FileStore) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close implements AssetStore.
func (s *FileStore) Close(_ context.Context) error {
	return nil
}
