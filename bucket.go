package histogram

import (
	"math/bits"
)

// Bucket is one slot of the counter store together with the approximate
// value it stands for. Value is the bucket's representative value, not an
// echo of any recorded observation.
type Bucket struct {
	ID    uint64
	Value uint64
	Count uint64
}

// bucketIndex maps a value onto its bucket index. It is defined for
// 1 <= value <= MaxValue; Record routes everything else to the missed
// counters before getting here.
//
// Values up to linearMax map directly onto their own bucket. Past that,
// the band is the power of two containing the value and the position
// within the band is linear, floored so that the representative value
// never overshoots the band.
func (h *Histogram) bucketIndex(value uint64) (uint64, bool) {
	if value < 1 || value > h.config.MaxValue {
		return 0, false
	}
	if value <= h.linearMax {
		return value - 1, true
	}

	outer := uint64(63 - bits.LeadingZeros64(value))
	base := uint64(1) << outer
	remain := value - base

	// inner = floor(bucketsInner * remain / base), in 128 bits so large
	// bands near the top of the range cannot overflow.
	hi, lo := bits.Mul64(h.bucketsInner, remain)
	inner, _ := bits.Div64(hi, lo, base)

	return h.linearMax + h.bucketsInner*(outer-h.linearPower) + inner, true
}

// bucketValue is the approximate inverse of bucketIndex: it reconstructs
// the band and inner position from the index and returns the lower edge of
// the bucket's value range. The round trip stays within one part in
// bucketsInner of the band base.
func (h *Histogram) bucketValue(index uint64) uint64 {
	if index < h.linearMax {
		return index + 1
	}

	remain := index - h.linearMax
	outer := remain/h.bucketsInner + h.linearPower
	inner := remain % h.bucketsInner
	base := uint64(1) << outer

	hi, lo := bits.Mul64(inner, base)
	offset, _ := bits.Div64(hi, lo, h.bucketsInner)

	return base + offset
}
