package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another devsup holds the lock file.
var ErrAlreadyRunning = errors.New("another devsup instance is already running here")

// acquireLock takes an exclusive lock on path without waiting. A second
// instance in the same directory would otherwise truncate the first one's log.
func acquireLock(path string) (*flock.Flock, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create lock dir %s: %w", dir, err)
		}
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, path)
	}
	return fl, nil
}

// releaseLock unlocks and closes the lock file. The file stays on disk so a
// concurrent locker never races a removal.
func releaseLock(log *slog.Logger, fl *flock.Flock) {
	if fl == nil {
		return
	}
	if err := fl.Close(); err != nil {
		log.Debug("failed to release lock", "path", fl.Path(), "error", err)
	}
}
