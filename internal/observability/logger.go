package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON to stdout, debug in dev, with
// trace/span ids attached whenever a span is active.
func NewLogger(env string) *slog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler)).With("service", namespace)
}
