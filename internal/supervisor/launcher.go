package supervisor

import (
	"io"

	"github.com/loykin/devsup/internal/process"
)

// Child is a running server process as seen by the supervisor loop.
type Child interface {
	PID() int
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait is called once both streams reached EOF and returns the exit code.
	Wait() (int, error)
	// Terminate requests a graceful shutdown.
	Terminate() error
}

// Launcher starts a new child for every run.
type Launcher interface {
	Launch() (Child, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func() (Child, error)

func (f LauncherFunc) Launch() (Child, error) { return f() }

// ProcessLauncher launches spec as an OS process.
func ProcessLauncher(spec process.Spec) Launcher {
	return LauncherFunc(func() (Child, error) {
		c, err := process.Start(spec)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
