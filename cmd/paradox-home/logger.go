package main

import (
	"io"
	"log/slog"
	"strings"
	"time"

	logp "github.com/charmbracelet/log"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// newLogger builds the process logger. "pretty" is the colored console
// format; "json" and "text" use the slog handlers.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "pretty":
		handler = logp.NewWithOptions(w, logp.Options{
			Level:           logp.Level(lvl),
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
			Prefix:          "paradox",
		})
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
