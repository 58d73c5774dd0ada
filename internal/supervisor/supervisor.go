// Package supervisor runs the dev server and keeps it alive.
//
// All supervision state (the current child, its run, the restart counter and
// the pending restart timer) is owned by a single goroutine, the loop in Run.
// Stream chunks and exits reach it through one FIFO channel; a run's exit is
// only sent after both of its streams are drained, so every chunk of a run is
// observed before its exit is evaluated.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/loykin/devsup/internal/history"
	"github.com/loykin/devsup/internal/logger"
	"github.com/loykin/devsup/internal/metrics"
	"github.com/loykin/devsup/internal/monitor"
)

// ErrRestartsExhausted is returned by Run when the child failed to start too
// many times in a row.
var ErrRestartsExhausted = errors.New("server failed too many times during startup")

const (
	msgStarting      = "Starting dev server (attempt %d/%d)"
	msgExited        = "Server process exited with code %d"
	msgExitedSignal  = "Server process exited with code null"
	msgSpawnFailed   = "Failed to start server: %v"
	msgStartupCrash  = "Server crashed during startup, restarting in %s... (%d/%d)"
	msgRunningCrash  = "Server was running but crashed, attempting restart..."
	msgGaveUp        = "Server failed too many times during startup, please check logs"
	msgShuttingDown  = "Shutting down server..."
	historyTimeout   = 2 * time.Second
	eventBufferDepth = 64
)

// Options configures a Supervisor. Only Launcher is required.
type Options struct {
	Launcher Launcher
	Policy   Policy
	Markers  []string

	Log    *slog.Logger
	Sink   *logger.Sink
	Stdout io.Writer
	Stderr io.Writer

	// History receives lifecycle events when set. Failures are logged and ignored.
	History history.Sink
	// Signals delivers shutdown requests. os.Interrupt is announced on the log,
	// anything else shuts down silently.
	Signals <-chan os.Signal
}

type eventKind int

const (
	evChunk eventKind = iota
	evExit
)

type event struct {
	kind  eventKind
	run   int
	chunk monitor.Chunk
	code  int
	err   error
}

// Supervisor spawns the child, restarts it per Policy and shuts it down on
// signal.
type Supervisor struct {
	launcher Launcher
	policy   Policy
	log      *slog.Logger
	mon      *monitor.Monitor
	history  history.Sink
	signals  <-chan os.Signal

	events chan event

	// loop-owned
	child        Child
	run          *monitor.Run
	runs         int
	restartCount int
	restartTimer *time.Timer
	startedAt    time.Time

	mu     sync.RWMutex
	status Status
}

func New(opts Options) (*Supervisor, error) {
	if opts.Launcher == nil {
		return nil, errors.New("supervisor: launcher is required")
	}
	if opts.Policy.MaxRestarts < 0 {
		return nil, fmt.Errorf("supervisor: max restarts must be >= 0, got %d", opts.Policy.MaxRestarts)
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Markers == nil {
		opts.Markers = []string{"ready in", "Local:"}
	}
	s := &Supervisor{
		launcher: opts.Launcher,
		policy:   opts.Policy,
		log:      opts.Log,
		history:  opts.History,
		signals:  opts.Signals,
		events:   make(chan event, eventBufferDepth),
		mon: &monitor.Monitor{
			Stdout:   opts.Stdout,
			Stderr:   opts.Stderr,
			Sink:     opts.Sink,
			Detector: monitor.NewDetector(opts.Markers),
			Log:      opts.Log,
		},
	}
	s.status = Status{State: StateIdle, MaxRestarts: opts.Policy.MaxRestarts}
	return s, nil
}

// Run launches the first child and supervises until a shutdown signal (nil),
// exhausted restarts (ErrRestartsExhausted) or ctx cancellation (ctx.Err()).
// In every case the live child, if any, has been asked to terminate and no
// restart is pending when Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.launch(ctx); err != nil {
		return err
	}
	for {
		var restartC <-chan time.Time
		if s.restartTimer != nil {
			restartC = s.restartTimer.C
		}
		select {
		case <-ctx.Done():
			s.shutdown(nil)
			return ctx.Err()
		case sig := <-s.signals:
			s.shutdown(sig)
			return nil
		case <-restartC:
			s.restartTimer = nil
			if err := s.launch(ctx); err != nil {
				return err
			}
		case ev := <-s.events:
			if err := s.handle(ev); err != nil {
				return err
			}
		}
	}
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.LastExitCode != nil {
		code := *st.LastExitCode
		st.LastExitCode = &code
	}
	return st
}

// PID returns the live child's pid or 0.
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.PID
}

func (s *Supervisor) launch(ctx context.Context) error {
	if s.child != nil {
		return nil
	}
	s.runs++
	s.run = &monitor.Run{ID: s.runs}
	s.log.Info(fmt.Sprintf(msgStarting, s.restartCount+1, s.policy.MaxRestarts), "run", s.runs)

	child, err := s.launcher.Launch()
	if err != nil {
		s.log.Error(fmt.Sprintf(msgSpawnFailed, err), "run", s.runs)
		metrics.IncSpawnFailure()
		s.record(history.Event{Type: history.EventSpawnFailed, ExitCode: -1, Detail: err.Error()})
		s.update(func(st *Status) {
			st.State = StateIdle
			st.Run = s.runs
			st.PID = 0
			st.Ready = false
			code := -1
			st.LastExitCode = &code
		})
		// A spawn failure counts as a startup failure with exit code -1.
		return s.apply(s.policy.Decide(-1, false, s.restartCount))
	}

	s.child = child
	s.startedAt = time.Now()
	metrics.IncStart()
	metrics.SetRunning(true)
	s.update(func(st *Status) {
		st.State = StateRunning
		st.Run = s.runs
		st.PID = child.PID()
		st.Ready = false
		st.StartedAt = s.startedAt
		st.ReadyAt = time.Time{}
	})
	s.record(history.Event{Type: history.EventStart, PID: child.PID()})
	go s.watch(ctx, s.runs, child)
	return nil
}

// watch forwards a run's output and then its exit to the loop.
func (s *Supervisor) watch(ctx context.Context, run int, child Child) {
	emit := func(c monitor.Chunk) bool {
		return s.send(ctx, event{kind: evChunk, run: run, chunk: c})
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Pump(ctx, monitor.Stdout, child.Stdout(), emit)
	}()
	go func() {
		defer wg.Done()
		monitor.Pump(ctx, monitor.Stderr, child.Stderr(), emit)
	}()
	wg.Wait()
	code, err := child.Wait()
	s.send(ctx, event{kind: evExit, run: run, code: code, err: err})
}

func (s *Supervisor) send(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) handle(ev event) error {
	if s.run == nil || ev.run != s.run.ID {
		return nil
	}
	switch ev.kind {
	case evChunk:
		if s.mon.Observe(s.run, ev.chunk) {
			now := time.Now()
			metrics.ObserveReady(now.Sub(s.startedAt))
			s.update(func(st *Status) {
				st.Ready = true
				st.ReadyAt = now
			})
			s.record(history.Event{Type: history.EventReady, PID: s.PID()})
		}
		return nil
	case evExit:
		return s.exited(ev.code, ev.err)
	}
	return nil
}

func (s *Supervisor) exited(code int, waitErr error) error {
	pid := s.PID()
	s.child = nil
	metrics.SetRunning(false)
	metrics.IncExit(code)
	if waitErr != nil {
		s.log.Debug("wait returned error", "run", s.run.ID, "error", waitErr)
	}
	// Negative codes mean the child died from a signal and has no exit status.
	if code < 0 {
		s.log.Info(msgExitedSignal, "run", s.run.ID)
	} else {
		s.log.Info(fmt.Sprintf(msgExited, code), "run", s.run.ID)
	}
	s.update(func(st *Status) {
		st.State = StateIdle
		st.PID = 0
		c := code
		st.LastExitCode = &c
	})
	s.record(history.Event{Type: history.EventExit, PID: pid, ExitCode: code})
	return s.apply(s.policy.Decide(code, s.run.Ready(), s.restartCount))
}

func (s *Supervisor) apply(d Decision) error {
	switch d.Action {
	case ActionRestart:
		if d.Reason == ReasonStartup {
			s.log.Warn(fmt.Sprintf(msgStartupCrash, d.Delay, d.RestartCount, s.policy.MaxRestarts), "run", s.run.ID)
		} else {
			s.log.Warn(msgRunningCrash, "run", s.run.ID)
		}
		s.restartCount = d.RestartCount
		s.restartTimer = time.NewTimer(d.Delay)
		metrics.IncRestart(string(d.Reason))
		metrics.SetRestartCount(s.restartCount)
		s.update(func(st *Status) {
			st.RestartCount = s.restartCount
			st.RestartPending = true
		})
		s.record(history.Event{Type: history.EventRestart, Detail: string(d.Reason)})
	case ActionFatal:
		s.log.Error(msgGaveUp, "restarts", s.restartCount)
		s.update(func(st *Status) {
			st.State = StateTerminating
			st.RestartPending = false
		})
		s.record(history.Event{Type: history.EventFatal})
		return ErrRestartsExhausted
	default:
		s.update(func(st *Status) { st.RestartPending = false })
	}
	return nil
}

// shutdown cancels any pending restart and asks the live child to terminate.
// It never escalates to a kill.
func (s *Supervisor) shutdown(sig os.Signal) {
	if sig == os.Interrupt {
		s.log.Info(msgShuttingDown)
	} else if sig != nil {
		s.log.Debug("shutdown requested", "signal", sig.String())
	}
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	if s.child != nil {
		if err := s.child.Terminate(); err != nil {
			s.log.Debug("terminate failed", "pid", s.child.PID(), "error", err)
		}
	}
	s.update(func(st *Status) {
		st.State = StateTerminating
		st.RestartPending = false
	})
	detail := "context cancelled"
	if sig != nil {
		detail = sig.String()
	}
	s.record(history.Event{Type: history.EventShutdown, PID: s.PID(), Detail: detail})
}

func (s *Supervisor) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func (s *Supervisor) record(e history.Event) {
	if s.history == nil {
		return
	}
	e.OccurredAt = time.Now().UTC()
	e.Run = s.runs
	e.RestartCount = s.restartCount
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := s.history.Send(ctx, e); err != nil {
		s.log.Debug("history send failed", "type", string(e.Type), "error", err)
	}
}
