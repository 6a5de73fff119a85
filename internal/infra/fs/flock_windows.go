//go:build windows
// +build windows

package fs

import "os"

// flockExclusive is a no-op on Windows; the single-writer constraint is
// documented rather than enforced there.
func flockExclusive(f *os.File) error {
	return nil
}

// flockUnlock is a no-op on Windows
func flockUnlock(f *os.File) error {
	return nil
}
