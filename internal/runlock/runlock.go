// Package runlock keeps two processes from writing the same output directory.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("output directory is locked by another run")

const lockPerm = 0o644

// Lock is an exclusive advisory lock on a file. The lock is released when
// the process exits, even without Release.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock at path without blocking. The file records the
// holder's pid for diagnostics.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockPerm)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}

	err = tryLock(f)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("%s: %w", path, err)
	}

	err = f.Truncate(0)
	if err == nil {
		_, err = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	if err != nil {
		_ = unlock(f)
		_ = f.Close()

		return nil, fmt.Errorf("write lock %s: %w", path, err)
	}

	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. The file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	err := errors.Join(unlock(l.file), l.file.Close())
	l.file = nil

	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}

	return nil
}
