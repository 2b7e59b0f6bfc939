// Package logging provides leveled logging for corti runs and the reports
// written alongside their results.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zoobzio/capitan"

	"github.com/linuxmatters/corti/internal/events"
)

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// OpenLogFile opens path for appending, creating parent directories.
// An empty path returns a nil file and no error.
func OpenLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// Bridge forwards run lifecycle events to logger until the returned stop
// function is called. Progress events log at debug level.
func Bridge(logger *slog.Logger) (stop func()) {
	observer := capitan.Observe(func(ctx context.Context, e *capitan.Event) {
		level := slog.LevelInfo
		switch e.Signal() {
		case events.Progress:
			level = slog.LevelDebug
		case events.RunFailed, events.StageFailed:
			level = slog.LevelError
		}
		if !logger.Enabled(ctx, level) {
			return
		}
		logger.LogAttrs(ctx, level, string(e.Signal()), eventAttrs(e)...)
	})
	return func() { observer.Close() }
}

func eventAttrs(e *capitan.Event) []slog.Attr {
	var attrs []slog.Attr
	addString := func(name, v string, ok bool) {
		if ok && v != "" {
			attrs = append(attrs, slog.String(name, v))
		}
	}
	addInt := func(name string, v int, ok bool) {
		if ok {
			attrs = append(attrs, slog.Int(name, v))
		}
	}

	v, ok := events.RunIDKey.From(e)
	addString("run", v, ok)
	v, ok = events.StimulusKey.From(e)
	addString("stimulus", v, ok)
	if level, ok := events.LevelKey.From(e); ok {
		attrs = append(attrs, slog.Float64("level_db", level))
	}
	v, ok = events.StageKey.From(e)
	addString("stage", v, ok)
	if f, ok := events.FractionKey.From(e); ok {
		attrs = append(attrs, slog.Float64("fraction", f))
	}

	v, ok = events.SeedKey.From(e)
	addString("seed", v, ok)
	n, ok := events.SectionsKey.From(e)
	addInt("sections", n, ok)
	n, ok = events.SamplesKey.From(e)
	addInt("samples", n, ok)
	n, ok = events.SpikesKey.From(e)
	addInt("spikes", n, ok)
	n, ok = events.DurationKey.From(e)
	addInt("ms", n, ok)

	v, ok = events.PathKey.From(e)
	addString("path", v, ok)
	v, ok = events.ErrorKey.From(e)
	addString("error", v, ok)
	return attrs
}
