package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// instanceLock keeps two clients from sharing one database and compositor
// session.
type instanceLock struct {
	path string
	lock *flock.Flock
}

func newInstanceLock(dbPath string) *instanceLock {
	lockPath := dbPath + ".lock"
	return &instanceLock{path: lockPath, lock: flock.New(lockPath)}
}

func (l *instanceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mikanlink instance is already running")
	}
	return nil
}

func (l *instanceLock) Release() {
	if err := l.lock.Unlock(); err != nil {
		slog.Warn("Failed to release instance lock", "path", l.path, "error", err)
	}
}
