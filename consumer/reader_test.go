package consumer_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byztime/byztime/consumer"
	"github.com/byztime/byztime/provider"
)

func TestOpenReaderHappyPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "byztime.dat")

	w, err := provider.OpenWriter(path)
	require.NoError(t, err)

	defer w.Close()

	r, err := consumer.OpenReader(path)
	require.NoError(t, err)

	defer r.Close()

	minOffset, est, maxOffset, err := r.Offset()
	require.NoError(t, err)
	require.LessOrEqual(t, minOffset.Seconds, est.Seconds+1)
	require.LessOrEqual(t, est.Seconds, maxOffset.Seconds+1)
}

func TestOpenReaderMissingFile(t *testing.T) {
	t.Parallel()

	_, err := consumer.OpenReader(filepath.Join(t.TempDir(), "nope.dat"))
	require.Error(t, err)
}
