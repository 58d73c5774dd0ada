package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/devsup"
	"github.com/loykin/devsup/internal/logger"
	"github.com/loykin/devsup/internal/metrics"
	"github.com/loykin/devsup/internal/server"
)

const initMessage = "Server monitor initializing..."

type runOptions struct {
	ConfigPath string
	Stdout     io.Writer
	Stderr     io.Writer
	Signals    <-chan os.Signal
	// ReleaseSignals, if set, is called as soon as the supervisor stops so that
	// a further interrupt during teardown gets the default behaviour.
	ReleaseSignals func()
}

// run wires the configuration into a supervisor and blocks until it stops.
// It returns nil after a shutdown signal.
func run(ctx context.Context, opts runOptions) error {
	cfg, err := devsup.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	boot := logger.New(cfg.Logger(), opts.Stderr, nil)
	if cfg.LockFile != "" {
		fl, err := acquireLock(cfg.LockFile)
		if err != nil {
			return err
		}
		defer releaseLock(boot, fl)
	}

	sink, log, err := devsup.OpenLog(cfg, opts.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()
	log.Info(initMessage)
	log.Debug("child command", "command", cfg.Command, "args", cfg.Argv(), "work_dir", cfg.WorkDir)

	var hist devsup.HistorySink
	var reader devsup.HistoryReader
	if cfg.History.DSN != "" {
		hs, err := devsup.OpenHistory(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer func() { _ = hs.Close() }()
		hist, reader = hs, hs
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		if err := devsup.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metricsHandler = devsup.MetricsHandler()
	}

	sup, err := devsup.New(cfg, devsup.Options{
		Log:     log,
		Sink:    sink,
		Stdout:  opts.Stdout,
		Stderr:  opts.Stderr,
		History: hist,
		Signals: opts.Signals,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The other members only live as long as the supervisor.
		defer cancel()
		if opts.ReleaseSignals != nil {
			defer opts.ReleaseSignals()
		}
		return sup.Run(gctx)
	})
	if cfg.Metrics.Enabled {
		sampler := metrics.NewProcessSampler(cfg.Metrics.ProcessInterval, sup.PID, log)
		g.Go(func() error { return sampler.Run(gctx) })
	}
	if cfg.Metrics.Listen != "" {
		srv := devsup.NewHTTPServer(cfg.Metrics.Listen, sup, reader, metricsHandler)
		log.Debug("status server listening", "addr", cfg.Metrics.Listen)
		g.Go(func() error {
			if err := server.Serve(gctx, srv); err != nil {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}
