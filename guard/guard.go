// Package guard converts a page fault on a truncated or unmapped memory
// region into a returnable error instead of crashing the process.
//
// The original protocol design traps SIGBUS synchronously via a
// process-wide signal handler and a thread-local sigsetjmp/siglongjmp
// resumption point, installed explicitly before any consumer read. Go's
// runtime gives us a narrower but equivalent tool for exactly this
// situation — a fault from dereferencing a truncated mmap region is
// delivered to the goroutine as a runtime.Error panic when
// runtime/debug.SetPanicOnFault is enabled, rather than as a process
// fatal signal. SetPanicOnFault is per-goroutine, not process-wide, so
// Run enables and restores it itself on whatever goroutine executes the
// guarded region, rather than relying on a one-time install elsewhere:
// a Reader is documented as safe for concurrent use by multiple
// goroutines, and each one needs the fault trapped on its own thread.
package guard

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/byztime/byztime/byzerr"
)

// ErrFault is returned by Run when the guarded function faulted while
// touching the mapped page (a truncated or otherwise invalid mapping).
// It wraps byzerr.ErrProtocol.
var ErrFault = fmt.Errorf("guard: fault while accessing mapped page: %w", byzerr.ErrProtocol)

// Run executes fn inside a guarded region on the calling goroutine. If
// fn returns normally, Run returns fn's result unchanged. If fn faults
// while touching the mapped page, Run recovers and returns ErrFault
// instead of letting the fault propagate. Any other panic (a
// programming error unrelated to the mapping) is re-raised unchanged,
// matching the design's requirement that the guard abstains from
// anything that isn't the specific fault it exists to catch.
func Run(fn func() error) (err error) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if runtimeErr, ok := r.(runtime.Error); ok && isFaultError(runtimeErr) {
			err = ErrFault

			return
		}

		panic(r)
	}()

	return fn()
}

// isFaultError reports whether a recovered runtime.Error represents the
// memory-access fault SetPanicOnFault converts into a panic, as opposed
// to an unrelated runtime error (nil map write, index out of range from
// a genuine programming mistake elsewhere in the same deferred stack,
// etc). The runtime labels these errors distinctly from ordinary
// recoverable errors; Error() on them mentions "invalid memory address
// or nil pointer dereference" or "fault address" (sigsegv/sigbus paths).
func isFaultError(err runtime.Error) bool {
	msg := err.Error()

	return strings.Contains(msg, "invalid memory address") ||
		strings.Contains(msg, "fault address") ||
		strings.Contains(msg, "SIGSEGV") ||
		strings.Contains(msg, "SIGBUS")
}
