//go:build unix

package actor

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func canRead(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

// canWrite also accepts a missing file whose directory is writable.
func canWrite(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return unix.Access(filepath.Dir(path), unix.W_OK|unix.X_OK) == nil
	}
	return unix.Access(path, unix.W_OK) == nil
}
