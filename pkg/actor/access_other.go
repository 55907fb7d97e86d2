//go:build !unix

package actor

import (
	"os"
	"path/filepath"
)

func canRead(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func canWrite(path string) bool {
	if _, err := os.Stat(path); err != nil {
		st, err := os.Stat(filepath.Dir(path))
		return err == nil && st.IsDir()
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
