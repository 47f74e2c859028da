package kafkalatencyaggregator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brayniac/histogram"
)

// PercentileValue is a single percentile estimate in nanoseconds.
type PercentileValue struct {
	Percentile float64
	Value      uint64
}

// Report is a point-in-time latency summary across all partitions.
type Report struct {
	ID            uuid.UUID
	GeneratedAt   time.Time
	Partitions    int
	Entries       uint64
	MissedSmall   uint64
	MissedLarge   uint64
	MissedUnknown uint64
	Percentiles   []PercentileValue
}

// BuildReport computes the requested percentiles from h. Percentiles that
// cannot be estimated, for example on an empty histogram, are omitted.
func BuildReport(h *histogram.Histogram, percentiles []float64, partitions int) *Report {
	r := &Report{
		ID:            uuid.New(),
		GeneratedAt:   time.Now().UTC(),
		Partitions:    partitions,
		Entries:       h.Entries(),
		MissedSmall:   h.MissedSmall(),
		MissedLarge:   h.MissedLarge(),
		MissedUnknown: h.MissedUnknown(),
	}

	for _, p := range percentiles {
		v, err := h.Percentile(p)
		if err != nil {
			continue
		}
		r.Percentiles = append(r.Percentiles, PercentileValue{Percentile: p, Value: v})
	}

	return r
}

// String renders the report on a single line, suitable for log output.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "report %s partitions=%d entries=%d missed_small=%d missed_large=%d",
		r.ID, r.Partitions, r.Entries, r.MissedSmall, r.MissedLarge)
	for _, pv := range r.Percentiles {
		fmt.Fprintf(&b, " p%s=%dns", formatQuantile(pv.Percentile), pv.Value)
	}
	return b.String()
}

// Keyvals returns the report as go-kit logging key/value pairs.
func (r *Report) Keyvals() []interface{} {
	kv := []interface{}{
		"report_id", r.ID.String(),
		"partitions", r.Partitions,
		"entries", r.Entries,
		"missed_small", r.MissedSmall,
		"missed_large", r.MissedLarge,
	}
	for _, pv := range r.Percentiles {
		kv = append(kv, "p"+formatQuantile(pv.Percentile), pv.Value)
	}
	return kv
}

// formatQuantile renders a percentile without a trailing ".0" so p50 stays
// p50 while p99.9 keeps its fraction.
func formatQuantile(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	return s
}
