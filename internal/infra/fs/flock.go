package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// WithLock runs fn while holding an exclusive advisory lock on lockPath.
// An empty lockPath disables locking; callers pass empty when operating on
// an in-memory filesystem or when single-process access is guaranteed.
//
// The lock is advisory: it protects the read-modify-write cycle of a store
// against another avc process on the same host, nothing more.
func WithLock(lockPath string, fn func() error) error {
	if lockPath == "" {
		return fn()
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	defer f.Close()

	if err := flockExclusive(f); err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	defer flockUnlock(f)

	return fn()
}
