package tokenstore

import (
	"fmt"
	"os"
	"time"
)

// Lock acquisition tuning. A lock older than staleLockAge is assumed to be
// left behind by a crashed process and is broken.
var (
	lockMaxRetries = 50
	lockRetryDelay = 100 * time.Millisecond
	staleLockAge   = 30 * time.Second
)

// fileLock is an advisory cross-process lock implemented as a sibling
// "<path>.lock" file created with O_EXCL.
type fileLock struct {
	f    *os.File
	path string
}

// acquireFileLock blocks until the lock for filePath is held or the retry
// budget is spent.
func acquireFileLock(filePath string) (*fileLock, error) {
	lockPath := filePath + ".lock"

	for range lockMaxRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// PID helps when debugging a stuck lock
			fmt.Fprintf(f, "%d", os.Getpid())
			return &fileLock{f: f, path: lockPath}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire file lock: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil &&
			time.Since(info.ModTime()) > staleLockAge {
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", lockPath, remErr)
			}
			continue
		}

		time.Sleep(lockRetryDelay)
	}

	return nil, fmt.Errorf(
		"timeout waiting for file lock after %v",
		time.Duration(lockMaxRetries)*lockRetryDelay,
	)
}

func (l *fileLock) release() error {
	if l.f != nil {
		l.f.Close()
	}
	return os.Remove(l.path)
}
