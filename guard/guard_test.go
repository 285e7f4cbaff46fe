package guard_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/byztime/byztime/guard"
)

func TestRunOK(t *testing.T) {
	t.Parallel()

	err := guard.Run(func() error { return nil })
	require.NoError(t, err)
}

func TestRunPropagatesOrdinaryError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("boom")

	err := guard.Run(func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)
}

func TestRunRecoversFault(t *testing.T) {
	t.Parallel()

	// Map a real page, then unmap it, then access it through a raw
	// pointer: this reproduces the exact fault a truncated-file guard
	// exists to catch, as opposed to an ordinary Go bounds-check panic.
	page, mmapErr := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	require.NoError(t, mmapErr)

	ptr := unsafe.Pointer(&page[0])

	require.NoError(t, unix.Munmap(page))

	err := guard.Run(func() error {
		_ = *(*byte)(ptr)

		return nil
	})

	require.ErrorIs(t, err, guard.ErrFault)
}

func TestRunRepanicsUnrelated(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		require.NotNil(t, r)
	}()

	_ = guard.Run(func() error {
		var m map[string]int
		m["x"] = 1 // nil map write: not a fault, a genuine programming error

		return nil
	})

	t.Fatal("unreachable")
}
