package consumer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/byztime/byztime/stamp"
	"github.com/byztime/byztime/wire"
)

// TestProjectStepMode checks that step mode always returns the last
// published offset as the estimate (Testable Property 9).
func TestProjectStepMode(t *testing.T) {
	t.Parallel()

	r := &Reader{driftPPB: defaultDriftPPB, maxRate: math.MaxInt64}

	entry := wire.Entry{
		Offset: stamp.Stamp{Seconds: 10},
		Error:  stamp.Stamp{Nanoseconds: 1_000_000},
		AsOf:   stamp.Stamp{Seconds: 1_000},
	}

	minOffset, est, maxOffset, err := r.project(entry, stamp.Stamp{Seconds: 1_005})
	require.NoError(t, err)
	require.Equal(t, entry.Offset, est)
	require.True(t, stamp.Cmp(minOffset, est) <= 0)
	require.True(t, stamp.Cmp(est, maxOffset) <= 0)
}

// TestProjectSlewMonotone covers scenario S4 directly against the
// clamping math: a step from 10s to 10.5s over 1s of local time, with
// rates clamped to [1e9, 1.5e9] ppb, must land the *global time*
// estimate's delta in [1.0s, 1.5s] — here the bare implied global-time
// advance (deltaLocal + deltaOffset = 1 + 0.5 = 1.5s) is already inside
// the bound, so no clamping occurs.
func TestProjectSlewMonotone(t *testing.T) {
	t.Parallel()

	r := &Reader{driftPPB: defaultDriftPPB, slewMode: true, minRate: 1_000_000_000, maxRate: 1_500_000_000}

	local1 := stamp.Stamp{Seconds: 1_000}

	entry1 := wire.Entry{
		Offset: stamp.Stamp{Seconds: 10},
		Error:  stamp.Stamp{Nanoseconds: 1_000_000},
		AsOf:   local1,
	}

	_, est1, _, err := r.project(entry1, local1)
	require.NoError(t, err)
	require.Equal(t, stamp.Stamp{Seconds: 10}, est1)

	local2 := stamp.Stamp{Seconds: 1_001}

	entry2 := wire.Entry{
		Offset: stamp.Stamp{Seconds: 10, Nanoseconds: 500_000_000},
		Error:  stamp.Stamp{Nanoseconds: 1_000_000},
		AsOf:   local2,
	}

	_, est2, _, err := r.project(entry2, local2)
	require.NoError(t, err)

	globalDelta := globalTimeDelta(t, local1, est1, local2, est2)

	require.True(t, stamp.Cmp(globalDelta, stamp.Stamp{Seconds: 1}) >= 0, "global delta %v below min rate", globalDelta)
	require.True(t, stamp.Cmp(globalDelta, stamp.Stamp{Seconds: 1, Nanoseconds: 500_000_000}) <= 0, "global delta %v above max rate", globalDelta)
}

// TestProjectSlewClampsDownward exercises the "clamped down" half of
// S4: a bare implied global-time advance of 2.8s (1s local + 1.8s
// offset change) over 1s of local time must be clamped to the 1.5s max
// rate.
func TestProjectSlewClampsDownward(t *testing.T) {
	t.Parallel()

	r := &Reader{driftPPB: defaultDriftPPB, slewMode: true, minRate: 1_000_000_000, maxRate: 1_500_000_000}

	local1 := stamp.Stamp{Seconds: 1_000}
	entry1 := wire.Entry{Offset: stamp.Stamp{Seconds: 10}, AsOf: local1}

	_, est1, _, err := r.project(entry1, local1)
	require.NoError(t, err)

	local2 := stamp.Stamp{Seconds: 1_001}
	entry2 := wire.Entry{Offset: stamp.Stamp{Seconds: 11, Nanoseconds: 800_000_000}, AsOf: local2}

	_, est2, _, err := r.project(entry2, local2)
	require.NoError(t, err)

	globalDelta := globalTimeDelta(t, local1, est1, local2, est2)
	require.Equal(t, stamp.Stamp{Seconds: 1, Nanoseconds: 500_000_000}, globalDelta)
}

// globalTimeDelta computes (local2+est2) - (local1+est1), the quantity
// S4's rate clamp actually bounds.
func globalTimeDelta(t *testing.T, local1, est1, local2, est2 stamp.Stamp) stamp.Stamp {
	t.Helper()

	global1, overflow := stamp.Add(local1, est1)
	require.False(t, overflow)

	global2, overflow := stamp.Add(local2, est2)
	require.False(t, overflow)

	delta, overflow := stamp.Sub(global2, global1)
	require.False(t, overflow)

	return delta
}

// TestProjectSlewUnboundedMaxRate checks that math.MaxInt64 for
// maxRate disables the upper clamp.
func TestProjectSlewUnboundedMaxRate(t *testing.T) {
	t.Parallel()

	r := &Reader{driftPPB: defaultDriftPPB, slewMode: true, minRate: 0, maxRate: math.MaxInt64}

	entry1 := wire.Entry{Offset: stamp.Stamp{Seconds: 10}, AsOf: stamp.Stamp{Seconds: 1_000}}
	_, _, _, err := r.project(entry1, stamp.Stamp{Seconds: 1_000})
	require.NoError(t, err)

	entry2 := wire.Entry{Offset: stamp.Stamp{Seconds: 1_000}, AsOf: stamp.Stamp{Seconds: 1_001}}
	_, est2, _, err := r.project(entry2, stamp.Stamp{Seconds: 1_001})
	require.NoError(t, err)

	require.Equal(t, stamp.Stamp{Seconds: 1_000}, est2, "unbounded max rate should not clamp a large forward jump")
}
