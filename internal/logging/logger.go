package logging

import (
	"log/slog"
	"os"
)

// New returns a production-friendly JSON logger writing to stdout unless
// format is "console", which selects a human-readable text handler.
func New(format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if format == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
