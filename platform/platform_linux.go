//go:build linux

package platform

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/byztime/byztime/stamp"
)

const bootIDPath = "/proc/sys/kernel/random/boot_id"

// LocalTime returns the current reading of the monotonic,
// non-adjustable clock measuring elapsed time since some boot-relative
// epoch, normalized.
func LocalTime() (stamp.Stamp, error) {
	var ts unix.Timespec

	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return stamp.Stamp{}, fmt.Errorf("platform: get local time: %w", err)
	}

	t, _ := stamp.Normalize(stamp.Stamp{Seconds: int64(ts.Sec), Nanoseconds: int64(ts.Nsec)})

	return t, nil
}

// RealTime returns a best-effort wall-clock reading, normalized.
func RealTime() (stamp.Stamp, error) {
	var ts unix.Timespec

	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return stamp.Stamp{}, fmt.Errorf("platform: get real time: %w", err)
	}

	t, _ := stamp.Normalize(stamp.Stamp{Seconds: int64(ts.Sec), Nanoseconds: int64(ts.Nsec)})

	return t, nil
}

// ClockEra returns 16 bytes uniquely identifying the current boot. It
// reads the 36-byte hex-dashed identifier from /proc/sys/kernel/random/boot_id
// and parses it into 16 raw bytes. Failures, including I/O errors and a
// malformed identifier, are returned to the caller; this function never
// panics on a hostile /proc entry.
func ClockEra() ([EraSize]byte, error) {
	var era [EraSize]byte

	raw, err := os.ReadFile(bootIDPath)
	if err != nil {
		return era, fmt.Errorf("platform: read boot id: %w", err)
	}

	hexDigits := strings.ReplaceAll(strings.TrimSpace(string(raw)), "-", "")

	decoded, err := hex.DecodeString(hexDigits)
	if err != nil {
		return era, fmt.Errorf("platform: parse boot id: %w", err)
	}

	if len(decoded) != EraSize {
		return era, fmt.Errorf("platform: boot id has %d bytes, want %d", len(decoded), EraSize)
	}

	copy(era[:], decoded)

	return era, nil
}
