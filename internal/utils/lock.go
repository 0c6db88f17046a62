package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = "sync.lock"

// SyncLock serializes snapshot writers across processes. A manual sync and
// the scheduler daemon must not rewrite the snapshot directory at the same
// time.
type SyncLock struct {
	lock *flock.Flock
	path string
}

// NewSyncLock creates a lock inside the given snapshot directory.
func NewSyncLock(dir string) (*SyncLock, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve snapshot dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(absDir, lockFileName)
	return &SyncLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the sync lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *SyncLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another shopsync process is writing the snapshot, waiting for it to finish...\n")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the sync lock.
func (l *SyncLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
