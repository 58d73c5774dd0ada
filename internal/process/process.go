package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ErrNotStarted is returned by Terminate on a child that never started.
var ErrNotStarted = errors.New("process not started")

// Child is one run of the supervised server. It is used for a single run and
// never restarted; a restart starts a new Child.
type Child struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu     sync.Mutex
	exited bool
}

// Start spawns the child with stdout and stderr captured as pipes.
// The caller must drain both Stdout and Stderr before calling Wait.
func Start(spec Spec) (*Child, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	if spec.InheritStdin {
		cmd.Stdin = os.Stdin
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.CommandLine(), err)
	}
	return &Child{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (c *Child) PID() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *Child) Stdout() io.Reader { return c.stdout }

func (c *Child) Stderr() io.Reader { return c.stderr }

// Wait blocks until the child exits and returns its exit code. A child killed
// by a signal reports -1. err is non-nil only when waiting itself failed.
func (c *Child) Wait() (int, error) {
	err := c.cmd.Wait()
	c.mu.Lock()
	c.exited = true
	c.mu.Unlock()
	code := ExitCode(err)
	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) {
		return code, err
	}
	return code, nil
}

// Terminate asks the child to shut down (SIGTERM on Unix). It never escalates.
func (c *Child) Terminate() error {
	if c.cmd == nil || c.cmd.Process == nil {
		return ErrNotStarted
	}
	if c.hasExited() {
		return nil
	}
	return terminate(c.cmd.Process)
}

func (c *Child) hasExited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

// ExitCode maps a cmd.Wait error to an exit code: 0 on success, the exit status
// for normal exits and -1 for signal deaths or non-exit errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
