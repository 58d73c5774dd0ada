package monitor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/loykin/devsup/internal/logger"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

type fixture struct {
	out, err, file *bytes.Buffer
	m              *Monitor
}

func newFixture() *fixture {
	f := &fixture{out: &bytes.Buffer{}, err: &bytes.Buffer{}, file: &bytes.Buffer{}}
	sink := logger.NewSink(nopCloser{f.file})
	f.m = &Monitor{
		Stdout:   f.out,
		Stderr:   f.err,
		Sink:     sink,
		Detector: NewDetector([]string{"ready in", "Local:"}),
		Log:      logger.New(logger.Config{}, nil, sink),
	}
	return f
}

func TestDetector_Markers(t *testing.T) {
	d := NewDetector([]string{"ready in", "Local:", ""})
	cases := []struct {
		in   string
		want bool
	}{
		{"  VITE v5.0.0  ready in 312 ms", true},
		{"  ➜  Local:   http://localhost:5173/", true},
		{"Network: http://10.0.0.2:5173/", false},
		{"already in use", false},
		{"local: lowercase", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := d.Match([]byte(tc.in)); got != tc.want {
			t.Fatalf("Match(%q) = %v want %v", tc.in, got, tc.want)
		}
	}
}

func TestObserve_MirrorsAndPersists(t *testing.T) {
	f := newFixture()
	run := &Run{ID: 1}
	f.m.Observe(run, Chunk{Stream: Stdout, Data: []byte("compiling...\n")})
	f.m.Observe(run, Chunk{Stream: Stderr, Data: []byte("warning: x\npartial")})

	if f.out.String() != "compiling...\n" {
		t.Fatalf("stdout mirror = %q", f.out.String())
	}
	if f.err.String() != "warning: x\npartial" {
		t.Fatalf("stderr mirror = %q", f.err.String())
	}
	log := f.file.String()
	if !strings.Contains(log, "] STDOUT: compiling...\n") {
		t.Fatalf("stdout chunk not persisted: %q", log)
	}
	if !strings.HasSuffix(log, "] STDERR: warning: x\npartial") {
		t.Fatalf("stderr chunk not persisted verbatim: %q", log)
	}
	if run.Ready() {
		t.Fatalf("run should not be ready")
	}
}

func TestObserve_ReadyLoggedOncePerRun(t *testing.T) {
	f := newFixture()
	run := &Run{ID: 1}
	if !f.m.Observe(run, Chunk{Stream: Stdout, Data: []byte("VITE ready in 200 ms\n")}) {
		t.Fatalf("first marker should make the run ready")
	}
	if f.m.Observe(run, Chunk{Stream: Stdout, Data: []byte("Local: http://localhost:5173/\n")}) {
		t.Fatalf("second marker must not report readiness again")
	}
	if !run.Ready() {
		t.Fatalf("run should be ready")
	}
	if n := strings.Count(f.file.String(), ReadyMessage); n != 1 {
		t.Fatalf("ready message logged %d times", n)
	}

	// A new run starts not ready and logs again.
	next := &Run{ID: 2}
	if !f.m.Observe(next, Chunk{Stream: Stdout, Data: []byte("Local: x")}) {
		t.Fatalf("new run should detect readiness")
	}
	if n := strings.Count(f.file.String(), ReadyMessage); n != 2 {
		t.Fatalf("ready message logged %d times after second run", n)
	}
}

func TestObserve_StderrNeverSignalsReady(t *testing.T) {
	f := newFixture()
	run := &Run{ID: 1}
	if f.m.Observe(run, Chunk{Stream: Stderr, Data: []byte("Local: http://localhost")}) {
		t.Fatalf("stderr must not signal readiness")
	}
	if run.Ready() {
		t.Fatalf("run should not be ready")
	}
}

func TestObserve_SplitMarkerIsMissed(t *testing.T) {
	f := newFixture()
	run := &Run{ID: 1}
	f.m.Observe(run, Chunk{Stream: Stdout, Data: []byte("  ready i")})
	f.m.Observe(run, Chunk{Stream: Stdout, Data: []byte("n 300 ms")})
	if run.Ready() {
		t.Fatalf("chunk-level matching should not join chunks")
	}
}

func TestObserve_ReadyLineFollowsChunkInSink(t *testing.T) {
	f := newFixture()
	f.m.Observe(&Run{ID: 1}, Chunk{Stream: Stdout, Data: []byte("Local: http://localhost:5173/\n")})
	lines := strings.Split(strings.TrimSuffix(f.file.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 sink lines, got %q", f.file.String())
	}
	if !strings.Contains(lines[0], "STDOUT: Local:") || !strings.HasSuffix(lines[1], ReadyMessage) {
		t.Fatalf("unexpected order: %q", lines)
	}
}

type chunkReader struct {
	parts []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.parts) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.parts[0])
	r.parts = r.parts[1:]
	return n, nil
}

func TestPump_EmitsChunksInOrder(t *testing.T) {
	r := &chunkReader{parts: []string{"a", "bc", "def"}}
	var got []string
	Pump(context.Background(), Stderr, r, func(c Chunk) bool {
		if c.Stream != Stderr {
			t.Fatalf("wrong stream %v", c.Stream)
		}
		got = append(got, string(c.Data))
		return true
	})
	if strings.Join(got, "|") != "a|bc|def" {
		t.Fatalf("chunks = %v", got)
	}
}

func TestPump_StopsWhenEmitRefuses(t *testing.T) {
	r := &chunkReader{parts: []string{"a", "b", "c"}}
	calls := 0
	Pump(context.Background(), Stdout, r, func(Chunk) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Fatalf("emit called %d times", calls)
	}
}

func TestPump_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	Pump(ctx, Stdout, strings.NewReader("data"), func(Chunk) bool {
		called = true
		return true
	})
	if called {
		t.Fatalf("emit should not be called after cancel")
	}
}

func TestPump_LargeOutputIsChunked(t *testing.T) {
	big := strings.Repeat("x", ChunkSize*2+10)
	var sizes []int
	var total bytes.Buffer
	Pump(context.Background(), Stdout, strings.NewReader(big), func(c Chunk) bool {
		sizes = append(sizes, len(c.Data))
		total.Write(c.Data)
		return true
	})
	if total.String() != big {
		t.Fatalf("data lost")
	}
	for _, n := range sizes {
		if n > ChunkSize {
			t.Fatalf("chunk of %d bytes exceeds ChunkSize", n)
		}
	}
}
