package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Default logging configuration constants
const (
	DefaultFile       = "server.log"
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the supervisor's console output and its persistent log file.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	File       string // log file path, truncated at startup (default server.log)
	Level      string // debug, info, warn, error (default info)
	Color      bool   // ANSI colored level names on the console
	ShowTime   bool   // include time on console lines
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // Gzip rotated files
}

// ParseLevel maps a level name to slog.Level. Unknown names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a logger writing every record to console and, when sink is
// non-nil, a "[timestamp] message" line to the sink.
func New(cfg Config, console io.Writer, sink *Sink) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handlers []slog.Handler
	if console != nil {
		if cfg.Color {
			handlers = append(handlers, NewColorTextHandler(console, opts, cfg.ShowTime))
		} else {
			handlers = append(handlers, slog.NewTextHandler(console, withoutTime(opts, cfg.ShowTime)))
		}
	}
	if sink != nil {
		handlers = append(handlers, NewSinkHandler(sink, opts.Level))
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(fanout(handlers))
}

// fanout dispatches each record to every enabled handler.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

func withoutTime(opts *slog.HandlerOptions, showTime bool) *slog.HandlerOptions {
	if showTime {
		return opts
	}
	o := *opts
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		return a
	}
	return &o
}
