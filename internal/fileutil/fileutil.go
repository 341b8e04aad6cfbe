package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmpty is returned by WriteAtomic when there is nothing to write.
var ErrEmpty = errors.New("refusing to write empty file")

// WriteAtomic writes data to a temp file next to path and renames it into
// place, so readers never observe a partial file. Parent directories are created.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
