package wire_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/byztime/byztime/stamp"
	"github.com/byztime/byztime/wire"
)

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()

	buf := make([]byte, wire.EntrySize)

	in := wire.Entry{
		Offset: stamp.Stamp{Seconds: 10, Nanoseconds: 1},
		Error:  stamp.Stamp{Seconds: 0, Nanoseconds: 500},
		AsOf:   stamp.Stamp{Seconds: 1000, Nanoseconds: 2},
	}

	wire.PutEntry(buf, in)
	out := wire.GetEntry(buf)

	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("entry round trip mismatch (-want +got):\n%s", diff)
	}

	// Padding bytes must be zero.
	for i := 48; i < wire.EntrySize; i++ {
		require.Equal(t, byte(0), buf[i])
	}
}

func TestMagicEraIndexRoundTrip(t *testing.T) {
	t.Parallel()

	page := make([]byte, wire.RecordSize)

	require.False(t, wire.ValidMagic(page))

	wire.StoreMagic(page, wire.Magic)
	require.True(t, wire.ValidMagic(page))

	era := [wire.EraSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	wire.StoreEra(page, era)
	require.Equal(t, era, wire.LoadEra(page))

	require.Equal(t, uint32(0), wire.LoadIndex(page))
	wire.StoreIndex(page, 7)
	require.Equal(t, uint32(7), wire.LoadIndex(page))
}

func TestEntryOffsetBounds(t *testing.T) {
	t.Parallel()

	require.Equal(t, wire.EntriesOffset, wire.EntryOffset(0))
	require.Equal(t, wire.EntriesOffset+(wire.NumEntries-1)*wire.EntrySize, wire.EntryOffset(wire.NumEntries-1))
}
