package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs a text handler on stdout as the default logger.
// Call exactly once from the entry point, never at import time.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}
