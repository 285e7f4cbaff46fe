// Package lock implements the exclusive advisory lock a provider takes
// on a sibling ".lock" file before mapping the shared record
// read-write. It additionally verifies, after acquiring the flock, that
// the lock file's inode has not changed out from under the open file
// descriptor — a hardening against a lock file being deleted and
// replaced by a different process between path resolution and flock
// acquisition that the bare original protocol's acquire_lock does not
// perform.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned when another process already holds the
// exclusive lock.
var ErrWouldBlock = errors.New("lock: already held by another process")

// errInodeMismatch signals that the lock file was replaced between
// being opened and being locked; the caller should retry.
var errInodeMismatch = errors.New("lock: lock file replaced during acquisition")

const (
	filePerm    = 0o600
	maxAttempts = 8

	// nameMax is POSIX's NAME_MAX, the limit on a single path component;
	// x/sys/unix does not export this as a named constant.
	nameMax = 255
)

// Lock is a held exclusive advisory lock on a data file's sibling
// ".lock" file.
type Lock struct {
	file *os.File
	path string
}

// PathFor derives the sibling lock path for a data file path: the
// data path with ".lock" appended. ENAMETOOLONG is surfaced explicitly
// since a lock path built this way can exceed platform path limits even
// when the data path alone does not.
func PathFor(dataPath string) (string, error) {
	lockPath := dataPath + ".lock"

	if len(filepath.Base(lockPath)) > nameMax || len(lockPath) > unix.PathMax {
		return "", fmt.Errorf("lock: %w", unix.ENAMETOOLONG)
	}

	return lockPath, nil
}

// Acquire opens (creating if necessary, mode 0600) and takes an
// exclusive non-blocking advisory lock on path, verifying the inode
// identity of the locked descriptor still matches the path after the
// flock succeeds. It retries a bounded number of times on a detected
// replacement race before giving up.
func Acquire(path string) (*Lock, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		l, err := tryAcquire(path)
		if err == nil {
			return l, nil
		}

		if !errors.Is(err, errInodeMismatch) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("lock: giving up after %d attempts: %w", maxAttempts, lastErr)
}

func tryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}

	if flockErr := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); flockErr != nil {
		f.Close()

		if errors.Is(flockErr, unix.EWOULDBLOCK) || errors.Is(flockErr, unix.EAGAIN) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("lock: flock %s: %w", path, flockErr)
	}

	match, err := inodeMatchesPath(f, path)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("lock: stat %s: %w", path, err)
	}

	if !match {
		f.Close()

		return nil, errInodeMismatch
	}

	return &Lock{file: f, path: path}, nil
}

// Release unlocks and closes the lock file. It is idempotent; the
// second and subsequent calls are no-ops.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil

	return err
}

// inodeMatchesPath compares the (dev, ino) of the already-open,
// already-locked file descriptor against a fresh stat of the path. A
// mismatch means the path was unlinked and recreated (or replaced by a
// rename) between when this process resolved the path and when it
// locked the descriptor it opened for it — the lock it holds no longer
// protects the file anyone else will subsequently open at that path.
func inodeMatchesPath(f *os.File, path string) (bool, error) {
	var fdStat, pathStat unix.Stat_t

	if err := unix.Fstat(int(f.Fd()), &fdStat); err != nil {
		return false, err
	}

	if err := unix.Stat(path, &pathStat); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}

		return false, err
	}

	return fdStat.Dev == pathStat.Dev && fdStat.Ino == pathStat.Ino, nil
}
