// Package locker serializes synchronization work behind one advisory file
// lock. The lock is process- and thread-visible and is released on process
// exit regardless of how the process ends, so it never survives restarts.
package locker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Lock guards the combination of git synchronization, publish pipeline and
// fingerprint write. Acquisition blocks without timeout; a cycle either
// completes or the process is killed.
//
// flock tracks held-state per instance, so a second Lock() on an already-held
// handle would return immediately; the mutex serializes the goroutines of
// this process, the flock excludes other processes.
type Lock struct {
	mu sync.Mutex
	fl *flock.Flock
}

// New creates a lock keyed by path, creating the parent directory if needed.
func New(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &Lock{fl: flock.New(path)}, nil
}

// Acquire blocks until the exclusive lock is held.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	if err := l.fl.Lock(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("acquire lock %s: %w", l.fl.Path(), err)
	}
	return nil
}

// Release drops the lock. Must pair with a successful Acquire.
func (l *Lock) Release() error {
	defer l.mu.Unlock()
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.fl.Path(), err)
	}
	return nil
}

// With runs fn while holding the lock, releasing on every exit path.
func (l *Lock) With(fn func() error) error {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() { _ = l.Release() }()
	return fn()
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.fl.Path() }
