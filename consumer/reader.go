// Package consumer implements the reader side of the protocol: many
// unprivileged processes map the shared record read-only and project
// the provider's last published datum forward to "now".
package consumer

import (
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/byztime/byztime/byzerr"
	"github.com/byztime/byztime/guard"
	"github.com/byztime/byztime/platform"
	"github.com/byztime/byztime/stamp"
	"github.com/byztime/byztime/wire"
)

// defaultDriftPPB is the protocol-wide default drift rate, 2.5e-4.
const defaultDriftPPB = 250_000

// Reader is an open, read-only handle on a shared record. A Reader's
// fast paths (Offset, GlobalTime) are allocation-free; they are not
// wait-free, since each call briefly takes mu to read the drift and
// slew state. Close unmaps the page. A Reader is safe for concurrent
// use by multiple goroutines: the mutable slew state is guarded by mu.
type Reader struct {
	file *os.File
	page []byte

	mu        sync.Mutex
	driftPPB  int64
	slewMode  bool
	havePrev  bool
	prevLocal stamp.Stamp
	prevEst   stamp.Stamp
	minRate   int64
	maxRate   int64

	closed bool
}

// OpenReader maps path read-only and validates it: the file must be at
// least one page long, its magic must match, and its recorded clock era
// must match the current boot. A Reader starts in step mode with the
// default drift rate.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("consumer: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("consumer: stat %s: %w", path, err)
	}

	if info.Size() < wire.RecordSize {
		file.Close()

		return nil, fmt.Errorf("%w: %s is shorter than one page", byzerr.ErrProtocol, path)
	}

	page, err := unix.Mmap(int(file.Fd()), 0, wire.RecordSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("consumer: mmap %s: %w", path, err)
	}

	r := &Reader{file: file, page: page, driftPPB: defaultDriftPPB, minRate: 0, maxRate: math.MaxInt64}

	if err := r.validateOpen(); err != nil {
		r.Close()

		return nil, err
	}

	return r, nil
}

func (r *Reader) validateOpen() error {
	return guard.Run(func() error {
		if !wire.ValidMagic(r.page) {
			return byzerr.ErrProtocol
		}

		era := wire.LoadEra(r.page)

		current, err := platform.ClockEra()
		if err != nil {
			return fmt.Errorf("consumer: get clock era: %w", err)
		}

		if era != current {
			return byzerr.ErrConnRefused
		}

		return nil
	})
}

// readCurrentEntry acquire-loads the ring index, bounds-checks it,
// copies the entry out, and validates that its fields are normalized.
// The bounds check and normalization check defend against a malicious
// or buggy writer; the guard defends against a writer that has
// truncated the file out from under this mapping.
func (r *Reader) readCurrentEntry() (wire.Entry, error) {
	var entry wire.Entry

	err := guard.Run(func() error {
		i := wire.LoadIndex(r.page)
		if i >= wire.NumEntries {
			return byzerr.ErrProtocol
		}

		entry = wire.GetEntry(r.page[wire.EntryOffset(i):])

		if !normalized(entry.Offset.Nanoseconds) || !normalized(entry.Error.Nanoseconds) || !normalized(entry.AsOf.Nanoseconds) {
			return byzerr.ErrProtocol
		}

		if entry.Error.Seconds < 0 || (entry.Error.Seconds == 0 && entry.Error.Nanoseconds < 0) {
			return byzerr.ErrProtocol
		}

		return nil
	})
	if err != nil {
		return wire.Entry{}, err
	}

	return entry, nil
}

func normalized(n int64) bool {
	return n >= 0 && n < 1_000_000_000
}

// Close unmaps the page and closes the file descriptor. Close is
// idempotent.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	var firstErr error

	if r.page != nil {
		if err := unix.Munmap(r.page); err != nil {
			firstErr = fmt.Errorf("consumer: munmap: %w", err)
		}

		r.page = nil
	}

	if err := r.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("consumer: close: %w", err)
	}

	return firstErr
}

// SetDrift sets the caller-configured drift rate in parts per billion,
// used only inside the offset/global-time projection.
func (r *Reader) SetDrift(ppb int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.driftPPB = ppb
}

// Drift returns the current drift rate in parts per billion.
func (r *Reader) Drift() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.driftPPB
}

// Slew enters slew mode, converting future discontinuous step
// estimates into a monotonically clamped-rate estimate, but only if
// half the width of the current (min, max) offset interval is at most
// *maxError; if maxError is nil the range check is skipped.
// Re-entering slew mode clears the previous sample, so the very next
// estimate steps once to the current midpoint and future estimates are
// clamped relative to it. INT64_MAX for maxRatePPB means an unbounded
// upper rate.
func (r *Reader) Slew(minRatePPB, maxRatePPB int64, maxError *stamp.Stamp) error {
	if _, err := r.readCurrentEntry(); err != nil {
		return err
	}

	if maxError != nil {
		minOffset, _, maxOffset, err := r.Offset()
		if err != nil {
			return err
		}

		width, overflow := stamp.Sub(maxOffset, minOffset)
		if overflow {
			return byzerr.ErrOverflow
		}

		if stamp.Cmp(stamp.Halve(width), *maxError) > 0 {
			return byzerr.ErrRange
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.slewMode = true
	r.havePrev = false
	r.minRate = minRatePPB
	r.maxRate = maxRatePPB

	return nil
}

// Step returns to step mode unconditionally: estimates are always the
// last-published offset at the sampled moment.
func (r *Reader) Step() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slewMode = false
	r.havePrev = false
}

