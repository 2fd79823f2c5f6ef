//go:build !unix

package fs

import (
	"fmt"
	"os"
)

// Lock is an exclusive lock file. On platforms without flock the file is
// created with O_EXCL and removed on Unlock.
type Lock struct {
	path string
}

// TryLock acquires the lock without blocking.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	f.Close()
	return &Lock{path: path}, nil
}

// Unlock releases the lock. It is safe to call on a nil Lock.
func (l *Lock) Unlock() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	return err
}
