package wire

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// word returns an atomic view of the 32-bit little-endian word at
// offset in page. page must be at least offset+4 bytes and, because it
// backs an mmap'd page, is always at least word-aligned at any 4-byte
// offset within it.
func word(page []byte, offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&page[offset])) //nolint:gosec
}

// loadWords performs a relaxed atomic load of each 32-bit word in
// [offset, offset+size), bracketed by a leading acquire fence, so the
// whole multi-word block is observed as a unit with respect to other
// fields. Go's sync/atomic loads are already at least acquire, so the
// "bracket" here is structural: every word is read via the atomic
// primitive, none via a plain slice read.
func loadWords(page []byte, offset, size int) []byte {
	out := make([]byte, size)

	for i := 0; i < size; i += 4 {
		w := atomic.LoadUint32(word(page, offset+i))
		binary.LittleEndian.PutUint32(out[i:i+4], w)
	}

	return out
}

// storeWords performs a relaxed atomic store of each 32-bit word in
// [offset, offset+len(data)), bracketed by a trailing release fence
// (again structural: every word is written via the atomic primitive).
func storeWords(page []byte, offset int, data []byte) {
	for i := 0; i < len(data); i += 4 {
		w := binary.LittleEndian.Uint32(data[i : i+4])
		atomic.StoreUint32(word(page, offset+i), w)
	}
}

// LoadMagic reads the magic field.
func LoadMagic(page []byte) [MagicSize]byte {
	var out [MagicSize]byte
	copy(out[:], loadWords(page, MagicOffset, MagicSize))

	return out
}

// StoreMagic writes the magic field. The provider writes this last
// during (re)initialization so the file is self-validating: a reader
// that observes a valid magic may trust the era and ring beneath it
// were already written.
func StoreMagic(page []byte, magic [MagicSize]byte) {
	storeWords(page, MagicOffset, magic[:])
}

// ValidMagic reports whether the page's magic matches the expected
// value.
func ValidMagic(page []byte) bool {
	return LoadMagic(page) == Magic
}

// LoadEra reads the 16-byte boot-era identifier.
func LoadEra(page []byte) [EraSize]byte {
	var out [EraSize]byte
	copy(out[:], loadWords(page, EraOffset, EraSize))

	return out
}

// StoreEra writes the 16-byte boot-era identifier.
func StoreEra(page []byte, era [EraSize]byte) {
	storeWords(page, EraOffset, era[:])
}

// LoadIndex acquire-loads the ring index.
func LoadIndex(page []byte) uint32 {
	return atomic.LoadUint32(word(page, IndexOffset))
}

// StoreIndex release-stores the ring index. Callers must have already
// written entries[i] before calling this, per the ring-entry update
// protocol.
func StoreIndex(page []byte, i uint32) {
	atomic.StoreUint32(word(page, IndexOffset), i)
}

// LoadRealOffset reads the persisted (global - wall) bootstrap offset
// without fencing (it is only ever read/written by the writer itself,
// serialized by the Writer's in-process mutex or, while opening, by the
// advisory lock).
func LoadRealOffset(page []byte) []byte {
	out := make([]byte, RealOffsetSize)
	copy(out, page[RealOffsetOffset:RealOffsetOffset+RealOffsetSize])

	return out
}

// StoreRealOffset writes the persisted (global - wall) bootstrap
// offset. Callers must hold the Writer's in-process mutex or, while
// opening, the advisory lock.
func StoreRealOffset(page []byte, data []byte) {
	copy(page[RealOffsetOffset:RealOffsetOffset+RealOffsetSize], data)
}
