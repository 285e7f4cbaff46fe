package wire

import (
	"encoding/binary"

	"github.com/byztime/byztime/stamp"
)

// Entry is one published (offset, error, as_of) triple: offset is
// global-minus-local at as_of, error is the non-negative half-width of
// the confidence interval at as_of, and as_of is the local-clock
// reading the measurement was taken at. The remaining 16 bytes of the
// 64-byte on-disk slot are reserved padding.
type Entry struct {
	Offset stamp.Stamp
	Error  stamp.Stamp
	AsOf   stamp.Stamp
}

// PutEntry encodes e into dst, a caller-owned slice of at least
// EntrySize bytes. The padding bytes are always zeroed so that a
// published entry is byte-for-byte deterministic (the writer zeros the
// slot before filling it in).
func PutEntry(dst []byte, e Entry) {
	_ = dst[EntrySize-1] // bounds check hint

	binary.LittleEndian.PutUint64(dst[0:8], uint64(e.Offset.Seconds))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(e.Offset.Nanoseconds))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(e.Error.Seconds))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(e.Error.Nanoseconds))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(e.AsOf.Seconds))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(e.AsOf.Nanoseconds))

	for i := 48; i < EntrySize; i++ {
		dst[i] = 0
	}
}

// GetEntry decodes an Entry from src, a caller-owned slice of at least
// EntrySize bytes. It performs no validation; callers on the read path
// that do not fully trust the writer must validate the result's
// normalization bounds themselves (see the consumer package's
// readCurrentEntry).
func GetEntry(src []byte) Entry {
	_ = src[EntrySize-1] // bounds check hint

	return Entry{
		Offset: stamp.Stamp{
			Seconds:     int64(binary.LittleEndian.Uint64(src[0:8])),
			Nanoseconds: int64(binary.LittleEndian.Uint64(src[8:16])),
		},
		Error: stamp.Stamp{
			Seconds:     int64(binary.LittleEndian.Uint64(src[16:24])),
			Nanoseconds: int64(binary.LittleEndian.Uint64(src[24:32])),
		},
		AsOf: stamp.Stamp{
			Seconds:     int64(binary.LittleEndian.Uint64(src[32:40])),
			Nanoseconds: int64(binary.LittleEndian.Uint64(src[40:48])),
		},
	}
}
