package consumer

import (
	"math"

	"github.com/byztime/byztime/byzerr"
	"github.com/byztime/byztime/platform"
	"github.com/byztime/byztime/stamp"
	"github.com/byztime/byztime/wire"
)

// Offset returns (min, est, max) bounds and estimate of the current
// offset (global - local), projected from the last published entry to
// now. In step mode est is always the last-published offset. In slew
// mode est is clamped relative to the previous call's (local, est) pair
// so that the implied rate of change of global time stays within
// [min_rate_ppb, max_rate_ppb]; after narrowing, (min, est, max) may not
// satisfy min <= est <= max by design: slew continuity is prioritized
// over interval membership.
func (r *Reader) Offset() (minOffset, est, maxOffset stamp.Stamp, err error) {
	entry, err := r.readCurrentEntry()
	if err != nil {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, err
	}

	var local stamp.Stamp

	local, err = localTime()
	if err != nil {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, err
	}

	return r.project(entry, local)
}

// GlobalTime returns (min, est, max) bounds and estimate of the
// Byzantine-fault-tolerant global time, i.e. local time plus the
// corresponding Offset() result.
func (r *Reader) GlobalTime() (minGlobal, est, maxGlobal stamp.Stamp, err error) {
	entry, err := r.readCurrentEntry()
	if err != nil {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, err
	}

	local, err := localTime()
	if err != nil {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, err
	}

	minOffset, estOffset, maxOffset, err := r.project(entry, local)
	if err != nil {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, err
	}

	var overflow bool

	minGlobal, overflow = addChecked(local, minOffset, overflow)
	est, overflow = addChecked(local, estOffset, overflow)
	maxGlobal, overflow = addChecked(local, maxOffset, overflow)

	if overflow {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrOverflow
	}

	return minGlobal, est, maxGlobal, nil
}

func addChecked(a, b stamp.Stamp, priorOverflow bool) (stamp.Stamp, bool) {
	sum, overflow := stamp.Add(a, b)

	return sum, priorOverflow || overflow
}

// project implements the offset/global-time projection shared by
// Offset and GlobalTime, given the last published entry and the
// current local time.
func (r *Reader) project(entry wire.Entry, local stamp.Stamp) (minOffset, est, maxOffset stamp.Stamp, err error) {
	age, overflow := stamp.Sub(local, entry.AsOf)
	if overflow {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrOverflow
	}

	r.mu.Lock()
	driftPPB := r.driftPPB
	slewMode := r.slewMode
	r.mu.Unlock()

	twiceDrift, overflowMul := checkedMulInt64(driftPPB, 2)
	if overflowMul {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrOverflow
	}

	widened, overflowScale := stamp.Scale(age, twiceDrift)
	if overflowScale {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrOverflow
	}

	epsilon, overflowAdd := stamp.Add(entry.Error, widened)
	if overflowAdd {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrOverflow
	}

	minOffset, overflowSub := stamp.Sub(entry.Offset, epsilon)
	if overflowSub {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrOverflow
	}

	maxOffset, overflowAdd2 := stamp.Add(entry.Offset, epsilon)
	if overflowAdd2 {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, byzerr.ErrOverflow
	}

	if !slewMode {
		return minOffset, entry.Offset, maxOffset, nil
	}

	est, err = r.slewEstimate(entry.Offset, local)
	if err != nil {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, err
	}

	return minOffset, est, maxOffset, nil
}

// slewEstimate computes the clamped-rate estimate for slew mode and
// records (local, est) as the new previous sample.
func (r *Reader) slewEstimate(offset, local stamp.Stamp) (stamp.Stamp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.havePrev {
		r.prevLocal = local
		r.prevEst = offset
		r.havePrev = true

		return offset, nil
	}

	deltaLocal, overflow := stamp.Sub(local, r.prevLocal)
	if overflow {
		return stamp.Stamp{}, byzerr.ErrOverflow
	}

	deltaOffset, overflow := stamp.Sub(offset, r.prevEst)
	if overflow {
		return stamp.Stamp{}, byzerr.ErrOverflow
	}

	deltaGlobal, overflow := stamp.Add(deltaLocal, deltaOffset)
	if overflow {
		return stamp.Stamp{}, byzerr.ErrOverflow
	}

	deltaGlobalMin, overflow := stamp.Scale(deltaLocal, r.minRate)
	if overflow {
		return stamp.Stamp{}, byzerr.ErrOverflow
	}

	var (
		est            stamp.Stamp
		haveDeltaGMax  bool
		deltaGlobalMax stamp.Stamp
	)

	if r.maxRate != math.MaxInt64 {
		deltaGlobalMax, overflow = stamp.Scale(deltaLocal, r.maxRate)
		if overflow {
			return stamp.Stamp{}, byzerr.ErrOverflow
		}

		haveDeltaGMax = true
	}

	switch {
	case stamp.Cmp(deltaGlobal, deltaGlobalMin) < 0:
		catchUp, overflowSub := stamp.Sub(deltaGlobalMin, deltaGlobal)
		if overflowSub {
			return stamp.Stamp{}, byzerr.ErrOverflow
		}

		est, overflow = stamp.Add(offset, catchUp)
		if overflow {
			return stamp.Stamp{}, byzerr.ErrOverflow
		}
	case haveDeltaGMax && stamp.Cmp(deltaGlobal, deltaGlobalMax) > 0:
		holdBack, overflowSub := stamp.Sub(deltaGlobal, deltaGlobalMax)
		if overflowSub {
			return stamp.Stamp{}, byzerr.ErrOverflow
		}

		est, overflow = stamp.Sub(offset, holdBack)
		if overflow {
			return stamp.Stamp{}, byzerr.ErrOverflow
		}
	default:
		est = offset
	}

	r.prevLocal = local
	r.prevEst = est

	return est, nil
}

func checkedMulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}

	product := a * b
	overflow := product/b != a

	return product, overflow
}

func localTime() (stamp.Stamp, error) {
	return platform.LocalTime()
}
