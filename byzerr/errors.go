// Package byzerr defines the sentinel errors shared by the provider and
// consumer halves of the protocol. Callers MUST classify errors with
// errors.Is; error strings are not part of the contract.
//
// Rebuild-class errors (ErrProtocol, ErrConnRefused) mean the data file
// itself cannot be trusted as-is: a reader should stop trusting it, and
// a provider observing ErrConnRefused-like conditions on its own record
// is expected to reinitialize rather than continue. Operational errors
// (ErrBusy, ErrRange, ErrOverflow, ErrNameTooLong) describe a request
// that failed for a reason unrelated to file integrity and may succeed
// if retried or adjusted.
package byzerr

import "errors"

var (
	// ErrProtocol means the shared record is structurally invalid: bad
	// magic, a ring index out of range, non-normalized published
	// fields, or a fault while reading the mapped page. Rebuild-class:
	// the file should be treated as corrupt.
	ErrProtocol = errors.New("byztime: protocol error")

	// ErrConnRefused means the record is well-formed but stamped with a
	// clock era other than the current boot's — almost always because
	// no provider is running this boot yet. Rebuild-class from the
	// reader's perspective: retry after the provider has (re)initialized.
	ErrConnRefused = errors.New("byztime: connection refused (era mismatch)")

	// ErrOverflow means a timestamp computation overflowed int64.
	// Operational: the specific result is undefined, but the context
	// remains usable for subsequent calls.
	ErrOverflow = errors.New("byztime: arithmetic overflow")

	// ErrRange means that, when entering slew mode, the half-width of
	// the current (min, max) offset interval exceeds the caller's
	// max_error. Operational: retry later or with a larger max_error.
	ErrRange = errors.New("byztime: requested bound out of range")

	// ErrNameTooLong means the derived lock-file path exceeds a
	// platform path-length limit. Operational: use a shorter data path.
	ErrNameTooLong = errors.New("byztime: lock path too long")

	// ErrClosed means a method was called on a Writer after Close.
	// Reader methods do not check whether the Reader has been closed.
	ErrClosed = errors.New("byztime: use of closed handle")

	// ErrBusy means a provider could not acquire the exclusive advisory
	// lock because another process already holds it. Operational: at
	// most one writer may be open on a given data file at a time.
	ErrBusy = errors.New("byztime: another writer is already open")
)
