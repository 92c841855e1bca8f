package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New builds the process logger. Format is "json" (default) or "text".
func New(w io.Writer, level string, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(orDefault(level, "info")))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(orDefault(format, "json"))) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected json|text)", format)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func orDefault(v string, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
