// Package log builds the structured loggers used across pgmstore.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared by every component
const (
	ComponentKey = "component"
	RequestIDKey = "request_id"
	RunIDKey     = "run_id"
)

// Options controls logger construction
type Options struct {
	Level  slog.Level
	Format string    // text (default) or json
	Output io.Writer // defaults to os.Stderr
	Redact []string  // attribute keys whose values are replaced
}

// ParseLevel converts a level name to a slog level. Matching is case
// insensitive; "warning" is accepted for warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New creates a logger writing to opts.Output
func New(opts Options) (*slog.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	if len(opts.Redact) > 0 {
		redact := make(map[string]struct{}, len(opts.Redact))
		for _, k := range opts.Redact {
			redact[k] = struct{}{}
		}
		handlerOpts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if _, ok := redact[a.Key]; ok {
				return slog.String(a.Key, "[REDACTED]")
			}
			return a
		}
	}

	switch strings.ToLower(opts.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", opts.Format)
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
