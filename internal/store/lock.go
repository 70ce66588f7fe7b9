package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lock acquires a file lock on the record set to prevent concurrent runs.
func (l *Local) Lock() error {
	lockPath := l.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		// A lock older than 10 minutes is considered stale.
		if time.Since(info.ModTime()) > 10*time.Minute {
			os.Remove(lockPath)
		} else {
			return fmt.Errorf("records are locked by another process (lock file: %s). "+
				"If this is an error, remove the lock file manually", lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return nil
}

// Unlock releases the record lock.
func (l *Local) Unlock() error {
	if err := os.Remove(l.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (l *Local) lockPath() string {
	return l.path + ".lock"
}
