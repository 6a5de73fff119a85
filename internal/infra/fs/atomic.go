// Package fs provides filesystem primitives shared by the persisted stores:
// atomic whole-file writes and advisory cross-process locking.
package fs

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFileAtomic writes data to a file atomically using temp file + rename.
// The temp file is created in the destination directory so the rename stays
// on one filesystem. If the rename fails, a direct non-atomic write is
// attempted as a fallback; if that also fails both errors are surfaced and
// the previous file content is left untouched.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmpFile, err := afero.TempFile(fsys, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		// Remove the temp file if it still exists after rename or fallback.
		fsys.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if renameErr := fsys.Rename(tmpPath, path); renameErr != nil {
		// Fallback: direct write. Not atomic, but better than silently
		// losing the update; if the fallback fails too, both errors are
		// surfaced and the operation aborts.
		if writeErr := afero.WriteFile(fsys, path, data, 0o644); writeErr != nil {
			return errors.Join(
				fmt.Errorf("atomic rename %s -> %s: %w", tmpPath, path, renameErr),
				fmt.Errorf("fallback write %s: %w", path, writeErr),
			)
		}
		return nil
	}

	return nil
}
