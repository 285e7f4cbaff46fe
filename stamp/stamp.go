// Package stamp implements fixed-point (seconds, nanoseconds) timestamp
// arithmetic with explicit overflow signaling.
//
// A Stamp is signed in its seconds field only; the nanoseconds field is
// always non-negative once normalized. Every operation accepts
// denormalized inputs, normalizes them, performs the requested arithmetic
// checked for overflow, renormalizes the result, and returns an overflow
// flag alongside the (possibly wrapped) result. Callers that ignore the
// overflow flag get two's-complement wraparound, never a panic.
package stamp

import "strconv"

const billion = 1_000_000_000

// Stamp is a signed count of seconds and nanoseconds since some epoch.
// A normalized Stamp has Nanoseconds in [0, 1e9); Seconds carries the
// sign. Most constructors here return denormalized or normalized values
// depending on the operation documented on each function.
type Stamp struct {
	Seconds     int64
	Nanoseconds int64
}

// Normalize brings n into [0, 1e9), folding any excess or deficit into s.
// Overflow is reported if the carry into Seconds wraps.
func Normalize(t Stamp) (Stamp, bool) {
	q := t.Nanoseconds / billion
	r := t.Nanoseconds % billion

	s, overflow := checkedAdd(t.Seconds, q)

	if r < 0 {
		r += billion

		var sub bool
		s, sub = checkedAdd(s, -1)
		overflow = overflow || sub
	}

	return Stamp{Seconds: s, Nanoseconds: r}, overflow
}

// Add returns a+b, normalized. Seconds addition is checked; nanosecond
// addition is not (the normalized inputs bound the magnitude to < 2e9,
// well inside int64), but any overflow from Normalize is propagated.
func Add(a, b Stamp) (Stamp, bool) {
	a, overflowA := Normalize(a)
	b, overflowB := Normalize(b)

	s, overflowAdd := checkedAdd(a.Seconds, b.Seconds)
	n := a.Nanoseconds + b.Nanoseconds

	result, overflowNorm := Normalize(Stamp{Seconds: s, Nanoseconds: n})

	return result, overflowA || overflowB || overflowAdd || overflowNorm
}

// Sub returns a-b, normalized.
func Sub(a, b Stamp) (Stamp, bool) {
	a, overflowA := Normalize(a)
	b, overflowB := Normalize(b)

	s, overflowSub := checkedSub(a.Seconds, b.Seconds)
	n := a.Nanoseconds - b.Nanoseconds

	result, overflowNorm := Normalize(Stamp{Seconds: s, Nanoseconds: n})

	return result, overflowA || overflowB || overflowSub || overflowNorm
}

// Cmp normalizes both operands and returns -1, 0, or 1 lexicographically
// on (Seconds, Nanoseconds). There is no overflow signal; a caller that
// cares must pre-normalize and check overflow itself.
func Cmp(a, b Stamp) int {
	a, _ = Normalize(a)
	b, _ = Normalize(b)

	switch {
	case a.Seconds < b.Seconds:
		return -1
	case a.Seconds > b.Seconds:
		return 1
	case a.Nanoseconds < b.Nanoseconds:
		return -1
	case a.Nanoseconds > b.Nanoseconds:
		return 1
	default:
		return 0
	}
}

// Scale multiplies t by ppb*1e-9 with banker's (round-half-to-even)
// rounding of the residue. Negative ppb is rejected by callers that need
// non-negative scale factors (drift widening never calls Scale with a
// negative ppb); this function itself handles the full int64 range of
// ppb via the general schoolbook path when ppb falls outside
// [0, 1e9].
func Scale(t Stamp, ppb int64) (Stamp, bool) {
	t, overflowNorm := Normalize(t)

	if ppb >= 0 && ppb <= billion {
		return downscale(t, ppb, overflowNorm)
	}

	return scaleGeneral(t, ppb, overflowNorm)
}

// downscale is the fast path for 0 <= ppb <= 1e9, matching the original
// split-seconds-into-giga-and-residue technique.
func downscale(t Stamp, ppb int64, overflowIn bool) (Stamp, bool) {
	gs := t.Seconds / billion
	rs := t.Seconds % billion

	outSeconds, overflow1 := checkedMul(gs, ppb)

	rsTerm := rs * ppb // |rs| < 1e9, |ppb| <= 1e9: fits in int64 (< 1e18)
	nTerm := t.Nanoseconds * ppb

	nTermGiga := nTerm / billion
	nTermResidue := nTerm % billion

	roundedGiga, tieRoundUp := halfEvenRound(nTermGiga, nTermResidue)
	if tieRoundUp {
		roundedGiga++
	}

	outNanoseconds := rsTerm + roundedGiga

	result, overflowNorm := Normalize(Stamp{Seconds: outSeconds, Nanoseconds: outNanoseconds})

	return result, overflowIn || overflow1 || overflowNorm
}

// halfEvenRound decides whether a residue (0 <= residue < 1e9, the
// fractional nanosecond*ppb term expressed over a 1e9 radix) rounds the
// giga term up under round-half-to-even. It returns the giga term
// unchanged plus a roundUp flag, mirroring the C implementation's
// compare-against-half-billion-then-check-low-bit structure.
func halfEvenRound(giga, residue int64) (int64, bool) {
	half := int64(billion / 2)

	switch {
	case residue < half:
		return giga, false
	case residue > half:
		return giga, true
	default:
		// Exact tie: round to even.
		return giga, giga&1 == 1
	}
}

// scaleGeneral is the schoolbook 2-limb x 2-limb multiply path used when
// ppb falls outside [0, 1e9]. The limbs are the 1e9-radix digits of
// (Seconds, Nanoseconds) and (ppb div 1e9, ppb mod 1e9).
func scaleGeneral(t Stamp, ppb int64, overflowIn bool) (Stamp, bool) {
	pg := ppb / billion
	pr := ppb % billion

	// s*pg is whole seconds directly.
	ssPg, overflow1 := checkedMul(t.Seconds, pg)

	// s*pr is seconds-worth of nanoseconds; split back into a
	// (seconds, nanoseconds) pair via truncating division (the pair
	// remains a valid, possibly-denormalized Stamp even if the
	// nanoseconds component comes out negative).
	sPr, overflow2 := checkedMul(t.Seconds, pr)
	sPrSeconds := sPr / billion
	sPrNanos := sPr % billion

	// n*pg is likewise seconds-worth of nanoseconds.
	nPg, overflow3 := checkedMul(t.Nanoseconds, pg)
	nPgSeconds := nPg / billion
	nPgNanos := nPg % billion

	// n*pr is a nanoseconds^2-scale term; round it down to a single
	// nanosecond count at half-even before folding it in. Its magnitude
	// is bounded (|n| < 1e9, |pr| < 1e9) so the product always fits.
	nPr := t.Nanoseconds * pr
	nPrNanos := roundDivHalfEven(nPr, billion)

	// Fold the three nanosecond-scale partial sums through a normalize
	// before adding the (potentially large) whole-seconds terms, so the
	// combination doesn't spuriously overflow.
	folded, overflowFold := Normalize(Stamp{Seconds: 0, Nanoseconds: sPrNanos + nPgNanos + nPrNanos})

	seconds, overflow4 := checkedAdd(ssPg, sPrSeconds)
	seconds, overflow5 := checkedAdd(seconds, nPgSeconds)
	seconds, overflow6 := checkedAdd(seconds, folded.Seconds)

	result, overflowNorm := Normalize(Stamp{Seconds: seconds, Nanoseconds: folded.Nanoseconds})

	overflow := overflowIn || overflow1 || overflow2 || overflow3 ||
		overflowFold || overflow4 || overflow5 || overflow6 || overflowNorm

	return result, overflow
}

// roundDivHalfEven divides num by the positive divisor den, rounding
// the result to the nearest integer with ties broken to even.
func roundDivHalfEven(num, den int64) int64 {
	q := num / den
	r := num % den

	if r == 0 {
		return q
	}

	twiceR := r * 2
	if twiceR < 0 {
		twiceR = -twiceR
	}

	switch {
	case twiceR < den:
		return q
	case twiceR > den:
		if r > 0 {
			return q + 1
		}

		return q - 1
	default:
		if q%2 == 0 {
			return q
		}

		if r > 0 {
			return q + 1
		}

		return q - 1
	}
}

// Halve divides t by two. It shifts both fields right by one bit,
// carrying 5e8 into the nanoseconds when Seconds was odd, and adds one
// nanosecond when the low two bits of Nanoseconds are 11. Because t is
// normalized first, this rounds a half-nanosecond result to the even
// neighbour, the same tie rule Scale uses. It is kept separate from
// Scale(t, 500_000_000) because it is cheaper. Halve always succeeds.
func Halve(t Stamp) Stamp {
	t, _ = Normalize(t)

	s := t.Seconds >> 1
	n := t.Nanoseconds >> 1

	if t.Seconds&1 != 0 {
		n += billion / 2
	}

	if t.Nanoseconds&0b11 == 0b11 {
		n++
	}

	result, _ := Normalize(Stamp{Seconds: s, Nanoseconds: n})

	return result
}

// Format renders t as "+-sssss.nnnnnnnnn" with exactly nine fractional
// digits. For negative values with a nonzero fraction, the printed
// seconds is s+1 and the printed fraction is 1e9-n, so the decimal point
// reads correctly for numbers like -0.5 (printed as "-0.500000000", not
// "-1.-500000000").
func Format(t Stamp) string {
	return string(AppendFormat(make([]byte, 0, 32), t))
}

// AppendFormat appends the formatted representation of t to buf and
// returns the extended buffer, mirroring the "write into caller buffer"
// contract of the original allocation-free formatter. 32 bytes of
// headroom is always sufficient.
func AppendFormat(buf []byte, t Stamp) []byte {
	t, _ = Normalize(t)

	s := t.Seconds
	n := t.Nanoseconds
	neg := s < 0

	if neg && n != 0 {
		s++
		n = billion - n
	}

	if neg {
		buf = append(buf, '-')
		s = -s
	} else {
		buf = append(buf, '+')
	}

	buf = strconv.AppendInt(buf, s, 10)
	buf = append(buf, '.')

	frac := strconv.AppendInt(nil, n, 10)
	for i := len(frac); i < 9; i++ {
		buf = append(buf, '0')
	}

	buf = append(buf, frac...)

	return buf
}

func checkedAdd(a, b int64) (int64, bool) {
	sum := a + b
	overflow := (b > 0 && sum < a) || (b < 0 && sum > a)

	return sum, overflow
}

func checkedSub(a, b int64) (int64, bool) {
	diff := a - b
	overflow := (b < 0 && diff < a) || (b > 0 && diff > a)

	return diff, overflow
}

func checkedMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}

	product := a * b
	overflow := product/b != a

	return product, overflow
}
