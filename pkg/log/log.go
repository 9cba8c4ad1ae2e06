// Package log configures the process-wide slog logger shared by the
// soundforge binaries. Components tag their records with WithModule so the
// builder, host and CLI stay distinguishable in one stream.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// levelNames maps log-level flag values onto slog levels. Unknown values
// fall back to info instead of failing startup.
var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Setup installs a text handler on stderr as the default logger.
func Setup(logLevel string) {
	level, ok := levelNames[strings.ToLower(logLevel)]
	if !ok {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger tagged with a module attribute.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
