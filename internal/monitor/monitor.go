// Package monitor observes the child's output streams: it mirrors raw chunks to
// the supervisor's own streams, persists them to the log sink and scans stdout
// for readiness markers.
//
// Matching is per chunk. A marker split across two reads is not seen; this
// mirrors how the stream is delivered and is accepted rather than line-buffered.
package monitor

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/loykin/devsup/internal/logger"
)

// ChunkSize is the read buffer size for child streams.
const ChunkSize = 4096

// ReadyMessage is logged once per run when a readiness marker is first seen.
const ReadyMessage = "Server is ready and responding"

// Stream identifies which child stream a chunk came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// Tag returns the sink tag for the stream.
func (s Stream) Tag() string {
	if s == Stderr {
		return logger.TagStderr
	}
	return logger.TagStdout
}

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Chunk is one raw read from a child stream.
type Chunk struct {
	Stream Stream
	Data   []byte
}

// Pump reads r in raw chunks and hands each one to emit until EOF, a read
// error, ctx cancellation, or emit returning false. Each emitted chunk owns its
// Data slice.
func Pump(ctx context.Context, s Stream, r io.Reader, emit func(Chunk) bool) {
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if ctx.Err() != nil || !emit(Chunk{Stream: s, Data: data}) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Detector tests chunks for readiness markers.
type Detector struct {
	markers [][]byte
}

func NewDetector(markers []string) *Detector {
	d := &Detector{}
	for _, m := range markers {
		if m != "" {
			d.markers = append(d.markers, []byte(m))
		}
	}
	return d
}

// Match reports whether b contains any marker.
func (d *Detector) Match(b []byte) bool {
	for _, m := range d.markers {
		if bytes.Contains(b, m) {
			return true
		}
	}
	return false
}

// Run is the readiness state of a single child run. A new Run starts not ready.
type Run struct {
	ID    int
	ready bool
}

func (r *Run) Ready() bool { return r != nil && r.ready }

// Monitor applies the per-chunk side effects. Mirror and sink writes are
// best-effort: a closed terminal or full disk must not stop supervision.
type Monitor struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Sink     *logger.Sink
	Detector *Detector
	Log      *slog.Logger
}

// Observe mirrors c, persists it, and for stdout checks readiness. It returns
// true only for the chunk that made run ready.
func (m *Monitor) Observe(run *Run, c Chunk) bool {
	if w := m.mirror(c.Stream); w != nil {
		_, _ = w.Write(c.Data)
	}
	if m.Sink != nil {
		_ = m.Sink.Stream(c.Stream.Tag(), c.Data)
	}
	if c.Stream != Stdout || run == nil || run.ready || m.Detector == nil {
		return false
	}
	if !m.Detector.Match(c.Data) {
		return false
	}
	run.ready = true
	if m.Log != nil {
		m.Log.Info(ReadyMessage, "run", run.ID)
	}
	return true
}

func (m *Monitor) mirror(s Stream) io.Writer {
	if s == Stderr {
		return m.Stderr
	}
	return m.Stdout
}
