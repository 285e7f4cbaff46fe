package lock_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byztime/byztime/internal/lock"
)

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.lock")

	l, err := lock.Acquire(path)
	require.NoError(t, err)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "Release must be idempotent")
}

func TestAcquireRejectsSecondHolder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.lock")

	l1, err := lock.Acquire(path)
	require.NoError(t, err)

	defer l1.Release()

	_, err = lock.Acquire(path)
	require.ErrorIs(t, err, lock.ErrWouldBlock)
}

func TestAcquireAfterReleaseSucceeds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.lock")

	l1, err := lock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := lock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestPathForRejectsOverlongPath(t *testing.T) {
	t.Parallel()

	longName := make([]byte, 300)
	for i := range longName {
		longName[i] = 'a'
	}

	_, err := lock.PathFor(filepath.Join(t.TempDir(), string(longName)))
	require.Error(t, err)
}
