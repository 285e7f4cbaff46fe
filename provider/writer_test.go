package provider_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byztime/byztime/consumer"
	"github.com/byztime/byztime/provider"
	"github.com/byztime/byztime/stamp"
	"github.com/byztime/byztime/wire"
)

// TestFirstTimeInit covers scenario S1: a writer opens a nonexistent
// path and produces a well-formed, immediately-readable record.
func TestFirstTimeInit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "byztime.dat")

	w, err := provider.OpenWriter(path)
	require.NoError(t, err)

	defer w.Close()

	offset, errBound, _, err := w.OffsetRaw()
	require.NoError(t, err)
	require.NotEqual(t, stamp.Stamp{}, errBound, "bootstrap error bound should be huge, not zero")
	_ = offset

	r, err := consumer.OpenReader(path)
	require.NoError(t, err)

	defer r.Close()

	minOffset, est, maxOffset, err := r.Offset()
	require.NoError(t, err)
	require.True(t, stamp.Cmp(minOffset, est) <= 0)
	require.True(t, stamp.Cmp(est, maxOffset) <= 0)
}

// TestSetOffsetRingRotation covers scenario S3: after N+1 publishes,
// which wrap the ring index past the end of the ring, the most recently
// published entry holds the last value written.
func TestSetOffsetRingRotation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "byztime.dat")

	w, err := provider.OpenWriter(path)
	require.NoError(t, err)

	defer w.Close()

	for i := 0; i < wire.NumEntries+1; i++ {
		off := stamp.Stamp{Seconds: int64(i)}
		require.NoError(t, w.SetOffset(off, stamp.Stamp{Nanoseconds: 1}, nil))
	}

	gotOffset, _, _, err := w.OffsetRaw()
	require.NoError(t, err)
	require.Equal(t, stamp.Stamp{Seconds: int64(wire.NumEntries)}, gotOffset)
}

func TestOpenWriterRejectsSecondWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "byztime.dat")

	w1, err := provider.OpenWriter(path)
	require.NoError(t, err)

	defer w1.Close()

	_, err = provider.OpenWriter(path)
	require.Error(t, err)
}
