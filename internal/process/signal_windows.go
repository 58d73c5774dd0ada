//go:build windows

package process

import (
	"errors"
	"os"
)

// terminate has no graceful equivalent on Windows; the child is terminated.
func terminate(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
