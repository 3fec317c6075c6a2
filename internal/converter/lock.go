package converter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning reports that another run holds the pidfile lock.
var ErrAlreadyRunning = errors.New("not running: pidfile is locked by another run")

// RunLock is the process-wide exclusion held for the duration of a run.
type RunLock struct {
	path string
	lock *flock.Flock
}

// AcquireLock locks path and writes the current pid into it.
func AcquireLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pidfile directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write pidfile: %w", err)
	}
	return &RunLock{path: path, lock: lock}, nil
}

// Path returns the pidfile location.
func (l *RunLock) Path() string { return l.path }

// Release clears the pid and drops the lock. The file itself stays: the
// flock is the guard, and removing the path would let a run that already
// opened it lock a file no later run can see.
func (l *RunLock) Release() error {
	if l == nil {
		return nil
	}
	truncErr := os.Truncate(l.path, 0)
	if errors.Is(truncErr, os.ErrNotExist) {
		truncErr = nil
	}
	return errors.Join(truncErr, l.lock.Unlock())
}
