// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a structured text logger tagged with the application name
// and pid. level is one of "debug", "info", "warn", "error"; anything else
// falls back to "info".
func New(app, level string) *slog.Logger {
	return NewWithWriter(app, level, os.Stdout)
}

// NewWithWriter is New with an explicit output, for tests.
func NewWithWriter(app, level string, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With(
		slog.String("app", app),
		slog.Int("pid", os.Getpid()),
	)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
