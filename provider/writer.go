// Package provider implements the writer side of the protocol: a
// single process publishes a continuously updated offset estimate into
// a memory-mapped shared record that unprivileged consumers read.
package provider

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/byztime/byztime/byzerr"
	"github.com/byztime/byztime/internal/lock"
	"github.com/byztime/byztime/platform"
	"github.com/byztime/byztime/stamp"
	"github.com/byztime/byztime/wire"
)

// defaultDriftPPB is the protocol-wide default drift rate, 2.5e-4.
const defaultDriftPPB = 250_000

// hugeError is used as the error bound of a bootstrap entry whose
// offset is effectively unknown: 2^62 - 1 seconds, matching the
// original protocol's sentinel.
var hugeError = stamp.Stamp{Seconds: (1 << 62) - 1, Nanoseconds: 0}

// Writer is an open handle on the provider side of a shared record.
// A Writer is not safe for concurrent use by multiple goroutines beyond
// what its own mutex-guarded methods provide for SetOffset; opening two
// Writers on the same file (even in the same process) is rejected by
// the advisory lock.
type Writer struct {
	mu     sync.Mutex // serializes SetOffset/UpdateRealOffset within this process
	file   *os.File
	lock   *lock.Lock
	page   []byte
	closed bool
}

// OpenWriter resolves path, acquires the sibling ".lock" file
// exclusively, creates or reuses the data file, maps it read-write, and
// (re)initializes the record per the provider's open contract: a
// missing or invalid magic triggers first-time init; a valid magic with
// a stale clock era triggers post-reboot reinit; otherwise the ring is
// left intact.
func OpenWriter(path string) (*Writer, error) {
	realPath, err := resolveForLock(path)
	if err != nil {
		return nil, err
	}

	lockPath, err := lock.PathFor(realPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", byzerr.ErrNameTooLong, err)
	}

	heldLock, err := lock.Acquire(lockPath)
	if err != nil {
		if errors.Is(err, lock.ErrWouldBlock) {
			return nil, byzerr.ErrBusy
		}

		return nil, err
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		heldLock.Release()

		return nil, fmt.Errorf("provider: open %s: %w", path, err)
	}

	if err := unix.Fallocate(int(file.Fd()), 0, 0, wire.RecordSize); err != nil {
		file.Close()
		heldLock.Release()

		return nil, fmt.Errorf("provider: allocate %s: %w", path, err)
	}

	page, err := unix.Mmap(int(file.Fd()), 0, wire.RecordSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		heldLock.Release()

		return nil, fmt.Errorf("provider: mmap %s: %w", path, err)
	}

	w := &Writer{file: file, lock: heldLock, page: page}

	if err := w.reinitialize(); err != nil {
		w.Close()

		return nil, err
	}

	return w, nil
}

// resolveForLock resolves path to an absolute, symlink-free form for
// deriving the lock path, tolerating a not-yet-existing data file (the
// common first-time-init case).
func resolveForLock(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("provider: resolve %s: %w", path, err)
	}

	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}

		return "", fmt.Errorf("provider: resolve %s: %w", path, err)
	}

	return real, nil
}

// reinitialize implements the first-time-init / post-reboot-reinit /
// leave-intact decision from the open contract. The advisory lock this
// Writer already holds makes it safe to mutate the record without the
// in-page mutex: no other writer can be concurrently doing the same.
func (w *Writer) reinitialize() error {
	era, err := platform.ClockEra()
	if err != nil {
		return fmt.Errorf("provider: get clock era: %w", err)
	}

	if !wire.ValidMagic(w.page) || wire.LoadIndex(w.page) >= wire.NumEntries {
		return w.firstTimeInit(era)
	}

	existingEra := wire.LoadEra(w.page)
	if existingEra != era {
		return w.rebootReinit(era)
	}

	return nil
}

func (w *Writer) firstTimeInit(era [wire.EraSize]byte) error {
	local, err := platform.LocalTime()
	if err != nil {
		return fmt.Errorf("provider: get local time: %w", err)
	}

	wall, err := platform.RealTime()
	if err != nil {
		return fmt.Errorf("provider: get real time: %w", err)
	}

	offset, overflow := stamp.Sub(wall, local)
	if overflow {
		return byzerr.ErrOverflow
	}

	entry := wire.Entry{Offset: offset, Error: hugeError, AsOf: local}

	wire.PutEntry(w.page[wire.EntryOffset(0):], entry)
	wire.StoreRealOffset(w.page, make([]byte, wire.RealOffsetSize))
	wire.StoreIndex(w.page, 0)
	wire.StoreEra(w.page, era)
	wire.StoreMagic(w.page, wire.Magic) // magic last: self-validating

	return nil
}

func (w *Writer) rebootReinit(era [wire.EraSize]byte) error {
	local, err := platform.LocalTime()
	if err != nil {
		return fmt.Errorf("provider: get local time: %w", err)
	}

	wall, err := platform.RealTime()
	if err != nil {
		return fmt.Errorf("provider: get real time: %w", err)
	}

	realOffset := decodeRealOffset(wire.LoadRealOffset(w.page))

	global, overflow := stamp.Add(wall, realOffset)
	if overflow {
		return byzerr.ErrOverflow
	}

	offset, overflow := stamp.Sub(global, local)
	if overflow {
		return byzerr.ErrOverflow
	}

	entry := wire.Entry{Offset: offset, Error: hugeError, AsOf: local}

	wire.PutEntry(w.page[wire.EntryOffset(0):], entry)
	wire.StoreIndex(w.page, 0)
	wire.StoreEra(w.page, era) // magic already valid

	return nil
}

// SetOffset publishes a new entry. If asOf is nil, the current local
// time is used. The 64-byte slot is zeroed before being filled in so
// its padding is deterministic.
func (w *Writer) SetOffset(offset, errBound stamp.Stamp, asOf *stamp.Stamp) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return byzerr.ErrClosed
	}

	at := asOf
	if at == nil {
		local, err := platform.LocalTime()
		if err != nil {
			return fmt.Errorf("provider: get local time: %w", err)
		}

		at = &local
	}

	entry := wire.Entry{Offset: offset, Error: errBound, AsOf: *at}

	next := (wire.LoadIndex(w.page) + 1) % wire.NumEntries

	wire.PutEntry(w.page[wire.EntryOffset(next):], entry)
	wire.StoreIndex(w.page, next)

	return nil
}

// OffsetQuick returns the offset field of the most recently published
// entry, read directly with no recomputation or additional fencing
// beyond the plain field read: a best-effort introspection tool for the
// writer itself, not for use by a separate reader process.
func (w *Writer) OffsetQuick() (stamp.Stamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return stamp.Stamp{}, byzerr.ErrClosed
	}

	i := wire.LoadIndex(w.page)
	entry := wire.GetEntry(w.page[wire.EntryOffset(i):])

	return entry.Offset, nil
}

// OffsetRaw returns the full (offset, error, as_of) triple of the most
// recently published entry (the bootstrap entry if SetOffset has not
// been called since it was written), without recomputation.
func (w *Writer) OffsetRaw() (offset, errBound, asOf stamp.Stamp, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrClosed
	}

	i := wire.LoadIndex(w.page)
	entry := wire.GetEntry(w.page[wire.EntryOffset(i):])

	return entry.Offset, entry.Error, entry.AsOf, nil
}

// UpdateRealOffset recomputes the current global time via the
// consumer-style projection, reads the current wall clock, and stores
// (global - wall) into real_offset so that a future reboot can seed a
// non-garbage bootstrap entry. Unlike the original implementation, a
// failure to read the wall clock is treated as an error here (the
// original checks the return value of the wall-clock read without
// comparing it against < 0, so it never actually detects that
// failure); this is a deliberate deviation, not a regression.
func (w *Writer) UpdateRealOffset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return byzerr.ErrClosed
	}

	i := wire.LoadIndex(w.page)
	entry := wire.GetEntry(w.page[wire.EntryOffset(i):])

	local, err := platform.LocalTime()
	if err != nil {
		return fmt.Errorf("provider: get local time: %w", err)
	}

	global, overflow := projectEstimate(entry, local, defaultDriftPPB)
	if overflow {
		return byzerr.ErrOverflow
	}

	wall, err := platform.RealTime()
	if err != nil {
		return fmt.Errorf("provider: get real time: %w", err)
	}

	realOffset, overflow := stamp.Sub(global, wall)
	if overflow {
		return byzerr.ErrOverflow
	}

	wire.StoreRealOffset(w.page, encodeRealOffset(realOffset))

	return nil
}

// RealOffset returns the best-guess global-minus-wall offset last
// recorded by UpdateRealOffset, for callers that want to persist it
// outside the mmap'd record (e.g. a bootstrap sidecar file).
func (w *Writer) RealOffset() (stamp.Stamp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return stamp.Stamp{}, byzerr.ErrClosed
	}

	return decodeRealOffset(wire.LoadRealOffset(w.page)), nil
}

// Close releases the shared mapping and the advisory lock. Close is
// idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	var firstErr error

	if w.page != nil {
		if err := unix.Munmap(w.page); err != nil {
			firstErr = fmt.Errorf("provider: munmap: %w", err)
		}

		w.page = nil
	}

	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("provider: close data file: %w", err)
	}

	if err := w.lock.Release(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("provider: release lock: %w", err)
	}

	return firstErr
}

func encodeRealOffset(s stamp.Stamp) []byte {
	buf := make([]byte, wire.RealOffsetSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(s.Seconds))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(s.Nanoseconds))

	return buf
}

func decodeRealOffset(buf []byte) stamp.Stamp {
	return stamp.Stamp{
		Seconds:     int64(binary.LittleEndian.Uint64(buf[0:8])),
		Nanoseconds: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}
}

// projectEstimate computes a step-mode global-time estimate from entry
// at current local time now: age-widen is not needed for a point
// estimate, only for error bounds, so this simply returns
// now + entry.Offset, checked for overflow. Used by UpdateRealOffset,
// which only needs a current best-guess global time, not a full
// (min, est, max) interval.
func projectEstimate(entry wire.Entry, now stamp.Stamp, _ int64) (stamp.Stamp, bool) {
	return stamp.Add(now, entry.Offset)
}
