package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// TimeFormat is the ISO-8601 layout used for every sink line (UTC, milliseconds).
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Stream tags used for raw child output lines.
const (
	TagStdout = "STDOUT"
	TagStderr = "STDERR"
)

// Sink is the append-only supervisor log. Every line starts with "[<timestamp>] ".
// Appends are serialized so lines never interleave.
type Sink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

// OpenSink truncates cfg.File, writes banner as its first line and returns a Sink
// appending to it through a rotating lumberjack writer.
func OpenSink(cfg Config, banner string) (*Sink, error) {
	path := cfg.File
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	// #nosec G306 -- the log is meant to be read by the developer
	if err := os.WriteFile(path, []byte(Stamp(time.Now())+banner+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("initialize log file %s: %w", path, err)
	}
	w := &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   cfg.Compress,
	}
	return NewSink(w), nil
}

// NewSink wraps an arbitrary writer; used by tests and embedders.
func NewSink(w io.WriteCloser) *Sink {
	return &Sink{w: w, now: time.Now}
}

// Stamp renders the "[<timestamp>] " prefix for t.
func Stamp(t time.Time) string {
	return "[" + t.UTC().Format(TimeFormat) + "] "
}

// Log appends one "[<timestamp>] msg" line.
func (s *Sink) Log(msg string) error {
	return s.write(msg + "\n")
}

// Stream appends a raw child output chunk tagged with tag. The chunk is written
// verbatim; no newline is added.
func (s *Sink) Stream(tag string, chunk []byte) error {
	return s.write(tag + ": " + string(chunk))
}

func (s *Sink) write(body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	_, err := io.WriteString(s.w, Stamp(s.now())+body)
	return err
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// SinkHandler is a slog.Handler that writes the record message, unmodified,
// to a Sink. Attributes are not rendered.
type SinkHandler struct {
	sink  *Sink
	level slog.Leveler
}

func NewSinkHandler(sink *Sink, level slog.Leveler) *SinkHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &SinkHandler{sink: sink, level: level}
}

func (h *SinkHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *SinkHandler) Handle(_ context.Context, r slog.Record) error {
	return h.sink.Log(r.Message)
}

func (h *SinkHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *SinkHandler) WithGroup(string) slog.Handler { return h }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
