// Package platform is the facade over the operating-system primitives
// the core protocol depends on: a monotonic clock, a wall clock, and a
// boot-identity token. The only implementation shipped is Linux's,
// matching the original protocol's explicit assumption of
// /proc/sys/kernel/random/boot_id as the clock-era source; a different
// target OS would need its own build-tagged file providing the same
// three functions from whatever monotonic-clock and boot-identity
// facilities it offers.
package platform

// EraSize is the length of the opaque clock-era token returned by
// ClockEra.
const EraSize = 16
