package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrLocked is returned by Lock when another process holds the lock.
var ErrLocked = errors.New("file is locked by another writer")

// TempPath returns a unique sibling path of dst suitable for building a file
// that is later moved into place with Publish.
func TempPath(dst string) string {
	dir, base := filepath.Split(dst)
	return filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", base, uuid.NewString()))
}

// Publish fsyncs tmp, renames it over dst and fsyncs the parent directory so
// the rename survives a crash. Readers holding dst open keep seeing the old file.
func Publish(tmp, dst string) error {
	if err := SyncFile(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("publish %s: %w", dst, err)
	}
	return SyncDir(filepath.Dir(dst))
}

// SyncFile flushes the file at path to stable storage.
func SyncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SyncDir flushes directory metadata (e.g. a rename) to stable storage.
func SyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}

// RemoveIfExists removes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
