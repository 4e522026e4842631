// Package log configures the process-wide structured logger shared by the
// flowline binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger. The level comes from the CLI flag, the
// handler format from LOG_FORMAT: "json" in deployments, text everywhere else.
func Setup(logLevel string) {
	options := &slog.HandlerOptions{Level: parseLevel(logLevel)}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule returns the default logger tagged with a subsystem name. Every
// long-lived component logs through one of these.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
