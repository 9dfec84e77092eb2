// Package lockfile guards against concurrent service instances. The desktop
// app can respawn the service before the old process exits; an OS-level file
// lock makes the race harmless.
package lockfile

import (
	"fmt"

	"github.com/gofrs/flock"
)

// Lock is an acquired single-instance lock
type Lock struct {
	fl *flock.Flock
}

// Acquire takes an exclusive non-blocking lock on path. It fails immediately
// when another instance holds it.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}

	if !locked {
		return nil, fmt.Errorf("another instance is already running (lock held on %s)", path)
	}

	return &Lock{fl: fl}, nil
}

// Release drops the lock
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// Path returns the lock file location
func (l *Lock) Path() string {
	return l.fl.Path()
}
