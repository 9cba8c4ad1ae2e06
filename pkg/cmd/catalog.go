package cmd

import (
	"context"
	"log/slog"

	"github.com/soundforge/soundforge/pkg/catalog"
)

// NewCatalog returns a catalog with the builtin node types registered, plus
// any additional types loaded from catalogPath when it is non-empty.
func NewCatalog(ctx context.Context, logger *slog.Logger, catalogPath string) *catalog.StaticCatalog {
	cat := catalog.NewStaticCatalog()
	cat.RegisterBuiltinNodes()

	if catalogPath != "" {
		count, err := cat.LoadFile(catalogPath)
		if err != nil {
			panic(err)
		}

		logger.InfoContext(ctx, "Loaded node catalog file", "path", catalogPath, "types", count)
	}

	return cat
}
