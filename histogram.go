// Package histogram provides a fixed-memory log-linear histogram for
// non-negative integer observations, in the style of the HDR latency
// histograms used in performance monitoring. Memory is allocated once at
// construction: values up to a configurable linear maximum map one-to-one
// onto buckets, and larger values land in power-of-two bands subdivided
// into 10^precision linear sub-buckets, bounding the relative error of any
// percentile estimate.
//
// A Histogram is not safe for concurrent use. The intended pattern for
// multi-threaded recording is one histogram per worker, aggregated
// out-of-band with Merge.
package histogram

import (
	"fmt"
	"math"
	"math/bits"
)

// counterWidth is the size in bytes of a single bucket counter.
const counterWidth = 8

// Histogram records integer observations into a pre-allocated, constant
// size counter store and answers percentile queries over them.
type Histogram struct {
	config Config

	// Derived geometry, fixed for the lifetime of the histogram.
	bucketsInner uint64 // sub-buckets per power-of-two band, 10^precision
	linearPower  uint64 // log2 of the first band boundary
	linearMax    uint64 // largest value with its own dedicated bucket
	bucketsOuter uint64 // power-of-two bands past the linear region
	bucketsTotal uint64
	memoryUsed   uint64

	counts []uint64

	entriesTotal  uint64
	missedSmall   uint64 // observations below 1
	missedLarge   uint64 // observations above MaxValue
	missedUnknown uint64 // in range but unmappable; defensive, expected zero
}

// New builds a histogram for the given configuration. The counter store is
// sized and zeroed up front and never resized afterwards. The only failure
// is ErrMemoryExceeded: either MaxMemory is too small for the derived
// geometry, or the geometry overflows.
func New(cfg Config) (*Histogram, error) {
	bucketsInner, ok := pow10(cfg.Precision)
	if !ok {
		return nil, fmt.Errorf("precision %d produces an unrepresentable bucket count: %w", cfg.Precision, ErrMemoryExceeded)
	}

	// linearPower is the smallest power of two that covers bucketsInner, so
	// the linear region is at least as fine as the logarithmic one.
	linearPower := uint64(bits.Len64(bucketsInner - 1))
	linearMax := uint64(1)<<linearPower - 1

	var bucketsOuter uint64
	if cfg.MaxValue > linearMax {
		maxPower := uint64(63 - bits.LeadingZeros64(cfg.MaxValue))
		bucketsOuter = maxPower - linearPower + 1
	}

	hi, outerBuckets := bits.Mul64(bucketsInner, bucketsOuter)
	if hi != 0 {
		return nil, fmt.Errorf("bucket geometry overflows: %w", ErrMemoryExceeded)
	}
	bucketsTotal := linearMax + outerBuckets
	if bucketsTotal < linearMax || bucketsTotal > math.MaxUint64/counterWidth {
		return nil, fmt.Errorf("bucket geometry overflows: %w", ErrMemoryExceeded)
	}
	memoryUsed := bucketsTotal * counterWidth

	if cfg.MaxMemory != 0 && memoryUsed > cfg.MaxMemory {
		return nil, fmt.Errorf("geometry needs %d bytes, limit is %d: %w", memoryUsed, cfg.MaxMemory, ErrMemoryExceeded)
	}

	return &Histogram{
		config:       cfg,
		bucketsInner: bucketsInner,
		linearPower:  linearPower,
		linearMax:    linearMax,
		bucketsOuter: bucketsOuter,
		bucketsTotal: bucketsTotal,
		memoryUsed:   memoryUsed,
		counts:       make([]uint64, bucketsTotal),
	}, nil
}

// Config returns the configuration the histogram was built with.
func (h *Histogram) Config() Config {
	return h.config
}

// Buckets returns the total number of bucket counters.
func (h *Histogram) Buckets() uint64 {
	return h.bucketsTotal
}

// MemoryUsed returns the size of the counter store in bytes.
func (h *Histogram) MemoryUsed() uint64 {
	return h.memoryUsed
}

// Increment records a single observation of value.
func (h *Histogram) Increment(value uint64) {
	h.Record(value, 1)
}

// Record adds count observations of value. Out-of-range values are tallied
// in the missed counters rather than a bucket; they still count toward
// Entries. All counters saturate instead of wrapping.
func (h *Histogram) Record(value, count uint64) {
	h.entriesTotal = satAdd(h.entriesTotal, count)

	switch {
	case value < 1:
		h.missedSmall = satAdd(h.missedSmall, count)
	case value > h.config.MaxValue:
		h.missedLarge = satAdd(h.missedLarge, count)
	default:
		index, ok := h.bucketIndex(value)
		if !ok {
			h.missedUnknown = satAdd(h.missedUnknown, count)
			return
		}
		h.counts[index] = satAdd(h.counts[index], count)
	}
}

// Get returns the counter for the bucket holding value. The second return
// is false when value cannot be mapped to a bucket; the missed counters are
// not consulted.
func (h *Histogram) Get(value uint64) (uint64, bool) {
	index, ok := h.bucketIndex(value)
	if !ok {
		return 0, false
	}
	return h.counts[index], true
}

// Entries returns the total number of observations recorded, including
// ones routed to the missed counters.
func (h *Histogram) Entries() uint64 {
	return h.entriesTotal
}

// MissedSmall returns the number of observations below 1.
func (h *Histogram) MissedSmall() uint64 {
	return h.missedSmall
}

// MissedLarge returns the number of observations above MaxValue.
func (h *Histogram) MissedLarge() uint64 {
	return h.missedLarge
}

// MissedUnknown returns the number of in-range observations that could not
// be mapped to a bucket. It stays zero unless the index mapper is broken.
func (h *Histogram) MissedUnknown() uint64 {
	return h.missedUnknown
}

// Percentile estimates the value at percentile p in [0, 100]. The estimate
// is a bucket's representative value, so it carries the histogram's bounded
// relative error rather than echoing an exact recorded value. It returns
// ErrOutOfRange when p is outside [0, 100] or nothing has been recorded.
func (h *Histogram) Percentile(p float64) (uint64, error) {
	if h.entriesTotal == 0 {
		return 0, fmt.Errorf("no entries recorded: %w", ErrOutOfRange)
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile %v: %w", p, ErrOutOfRange)
	}

	total := h.entriesTotal
	need := uint64(math.Ceil(float64(total) * p / 100))
	if need > total {
		need = total
	}
	// Convert "entries at or below" into a count from the far end, keeping
	// at least one entry so a bucket is always found.
	need = total - need
	if need == 0 {
		need = 1
	}

	var have uint64
	if p < 50 {
		threshold := total - need
		for i := uint64(0); i < h.bucketsTotal; i++ {
			have = satAdd(have, h.counts[i])
			if have >= threshold {
				return h.bucketValue(i), nil
			}
		}
	} else {
		for i := h.bucketsTotal; i > 0; i-- {
			have = satAdd(have, h.counts[i-1])
			if have >= need {
				return h.bucketValue(i - 1), nil
			}
		}
	}

	// Unreachable with consistent counters.
	return 0, fmt.Errorf("percentile scan exhausted: %w", ErrOutOfRange)
}

// Merge folds a full bucket pass of other into h, recording each non-empty
// bucket's representative value. It is lossy: representative values, not
// original observations, are merged, so the result inherits other's bucket
// boundaries. other is read-only to Merge; callers wanting a destructive
// move should Reset other afterwards.
func (h *Histogram) Merge(other *Histogram) {
	it := other.Iter()
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		if b.Count == 0 {
			continue
		}
		h.Record(b.Value, b.Count)
	}
}

// Reset zeroes every counter. The geometry is untouched.
func (h *Histogram) Reset() {
	h.entriesTotal = 0
	h.missedSmall = 0
	h.missedLarge = 0
	h.missedUnknown = 0
	for i := range h.counts {
		h.counts[i] = 0
	}
}

// satAdd adds two counters, clamping at the maximum instead of wrapping.
func satAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// pow10 returns 10^n, reporting overflow past the uint64 range.
func pow10(n uint) (uint64, bool) {
	if n > 19 {
		return 0, false
	}
	v := uint64(1)
	for i := uint(0); i < n; i++ {
		v *= 10
	}
	return v, true
}
