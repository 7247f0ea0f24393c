// Package logging wraps slog with the field names used across vec0.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with vec0 specific helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with handler; nil selects a text handler on
// stderr at Info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger writing JSON records to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger writing text records to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1000)}))
}

// FromConfig builds a logger from textual level and format names as found in
// configuration files. Unknown levels fall back to info, unknown formats to text.
func FromConfig(w io.Writer, level, format string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return NewLogger(slog.NewJSONHandler(w, opts))
	}
	return NewLogger(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithTable adds a table field.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{Logger: l.Logger.With("table", name)}
}

// WithK adds a k (neighbor count) field.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{Logger: l.Logger.With("k", k)}
}

// LogCompaction logs the outcome of compacting one chunk.
func (l *Logger) LogCompaction(ctx context.Context, chunk int64, moved, live int, released bool) {
	l.DebugContext(ctx, "chunk compacted",
		"chunk", chunk,
		"moved", moved,
		"live", live,
		"released", released,
	)
}

// LogFlush logs a persistence flush.
func (l *Logger) LogFlush(ctx context.Context, written, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"written", written,
			"removed", removed,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "flush completed",
		"written", written,
		"removed", removed,
	)
}
