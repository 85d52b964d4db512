package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another upload holds the lock.
var ErrLocked = errors.New("another azrael upload is already running")

// Lock serializes uploads from the same working directory.
type Lock struct {
	lock *flock.Flock
	path string
}

// AcquireLock takes the upload lock in dir/.azrael without blocking.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Join(dir, StateDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, StateDir, "upload.lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{lock: fl, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks the upload lock.
func (l *Lock) Release() error {
	return l.lock.Unlock()
}
