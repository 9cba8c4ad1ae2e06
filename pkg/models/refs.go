package models

// TransientRef identifies a live in-memory instance on the remote host.
// Valid only for the lifetime of the host process; never durable.
type TransientRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Valid reports whether the ref points at an instance.
func (r TransientRef) Valid() bool {
	return r.ID != ""
}

// AssetRef identifies a durable, named asset stored by the remote host,
// addressed by (storage path, asset name).
type AssetRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Valid reports whether the ref points at an asset.
func (r AssetRef) Valid() bool {
	return r.ID != ""
}

// Location joins path and name for logging. The core performs no parsing
// beyond this concatenation.
func (r AssetRef) Location() string {
	return JoinAssetPath(r.Path, r.Name)
}

// JoinAssetPath concatenates a storage path and asset name with exactly one
// separating slash.
func JoinAssetPath(path, name string) string {
	if path == "" {
		return name
	}

	if path[len(path)-1] == '/' {
		return path + name
	}

	return path + "/" + name
}
