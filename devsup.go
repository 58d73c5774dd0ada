// Package devsup embeds the dev server supervisor in other Go programs.
package devsup

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/devsup/internal/config"
	"github.com/loykin/devsup/internal/env"
	"github.com/loykin/devsup/internal/history"
	"github.com/loykin/devsup/internal/history/sqlite"
	"github.com/loykin/devsup/internal/logger"
	"github.com/loykin/devsup/internal/metrics"
	"github.com/loykin/devsup/internal/process"
	"github.com/loykin/devsup/internal/server"
	"github.com/loykin/devsup/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Spec = process.Spec

type Status = supervisor.Status

type Sink = logger.Sink

type Event = history.Event

type HistorySink = history.Sink

type HistoryReader = history.Reader

// ErrRestartsExhausted is returned by Run when the server failed to start too
// many times in a row.
var ErrRestartsExhausted = supervisor.ErrRestartsExhausted

const (
	// SinkBanner is the first line of every fresh server log.
	SinkBanner = "Server monitor started"
	childName  = "dev-server"
)

// childOverlay is applied to every child environment. Configured env entries
// and env files are layered on top and may override it.
var childOverlay = [][2]string{
	{"NODE_ENV", "development"},
	{"NODE_OPTIONS", "--max-old-space-size=4096"},
}

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func DefaultConfig() *Config { return config.Default() }

// OpenLog truncates the configured log file, seeds it with SinkBanner and
// returns the sink together with a logger writing to console and the sink.
func OpenLog(c *Config, console io.Writer) (*Sink, *slog.Logger, error) {
	sink, err := logger.OpenSink(c.Logger(), SinkBanner)
	if err != nil {
		return nil, nil, err
	}
	return sink, logger.New(c.Logger(), console, sink), nil
}

// OpenHistory opens the SQLite run history at dsn.
func OpenHistory(dsn string) (*sqlite.Sink, error) { return sqlite.New(dsn) }

// ChildSpec builds the dev server's process spec from c: the current
// environment with NODE_ENV and NODE_OPTIONS set, then the configured entries.
func ChildSpec(c *Config) (Spec, error) {
	overlay, err := c.ChildEnv()
	if err != nil {
		return Spec{}, err
	}
	e := env.New()
	e.FromOS()
	for _, kv := range childOverlay {
		e.Set(kv[0], kv[1])
	}
	return Spec{
		Name:         childName,
		Command:      c.Command,
		Args:         c.Argv(),
		WorkDir:      c.WorkDir,
		Env:          e.Merge(overlay),
		InheritStdin: true,
	}, nil
}

// Options are the runtime collaborators of a Supervisor. All are optional.
type Options struct {
	Log     *slog.Logger
	Sink    *Sink
	Stdout  io.Writer
	Stderr  io.Writer
	History HistorySink
	Signals <-chan os.Signal
}

// Supervisor is a thin facade over internal/supervisor.Supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

// New builds a supervisor running the command described by c.
func New(c *Config, opts Options) (*Supervisor, error) {
	spec, err := ChildSpec(c)
	if err != nil {
		return nil, err
	}
	inner, err := supervisor.New(supervisor.Options{
		Launcher: supervisor.ProcessLauncher(spec),
		Policy: supervisor.Policy{
			MaxRestarts:  c.Restart.MaxRestarts,
			StartupDelay: c.Restart.StartupDelay,
			CrashDelay:   c.Restart.CrashDelay,
		},
		Markers: c.Ready.Markers,
		Log:     opts.Log,
		Sink:    opts.Sink,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		History: opts.History,
		Signals: opts.Signals,
	})
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: inner}, nil
}

// Run supervises until a signal arrives on Options.Signals (nil), restarts are
// exhausted (ErrRestartsExhausted) or ctx is cancelled (ctx.Err()).
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }
func (s *Supervisor) Status() Status                { return s.inner.Status() }
func (s *Supervisor) PID() int                      { return s.inner.PID() }

// Handler returns the read-only status API mounted under basePath. hist and
// metricsHandler may be nil.
func (s *Supervisor) Handler(basePath string, hist HistoryReader, metricsHandler http.Handler) http.Handler {
	return server.NewRouter(s.inner, hist, metricsHandler, basePath).Handler()
}

// NewHTTPServer builds (but does not start) an HTTP server exposing the status API.
func NewHTTPServer(addr string, s *Supervisor, hist HistoryReader, metricsHandler http.Handler) *http.Server {
	return server.NewServer(addr, server.NewRouter(s.inner, hist, metricsHandler, ""))
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
