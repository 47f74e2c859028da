package histogram

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Geometry(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		bucketsTotal uint64
		memoryUsed   uint64
	}{
		{
			name:         "pure linear region",
			cfg:          Config{Precision: 3, MaxValue: 10},
			bucketsTotal: 1023,
			memoryUsed:   1023 * 8,
		},
		{
			name: "linear plus three bands",
			// linearMax 15, bands for 2^4..2^6 reach 100
			cfg:          Config{Precision: 1, MaxValue: 100},
			bucketsTotal: 45,
			memoryUsed:   45 * 8,
		},
		{
			name:         "single bucket",
			cfg:          Config{Precision: 0, MaxValue: 1},
			bucketsTotal: 1,
			memoryUsed:   8,
		},
		{
			name:         "default latency range",
			cfg:          Config{Precision: DefaultPrecision, MaxValue: DefaultMaxValue},
			bucketsTotal: 27023,
			memoryUsed:   27023 * 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New(tt.cfg)
			require.NoError(t, err)
			require.Equal(t, tt.bucketsTotal, h.Buckets())
			require.Equal(t, tt.memoryUsed, h.MemoryUsed())
			require.Zero(t, h.Entries())
		})
	}
}

func TestNew_MemoryExceeded(t *testing.T) {
	cfg := Config{Precision: 3, MaxValue: 10, MaxMemory: 1023*8 - 1}
	h, err := New(cfg)
	require.Nil(t, h)
	require.ErrorIs(t, err, ErrMemoryExceeded)

	// One byte more than needed is enough.
	cfg.MaxMemory = 1023 * 8
	h, err = New(cfg)
	require.NoError(t, err)
	require.Equal(t, uint64(1023*8), h.MemoryUsed())
}

func TestNew_UnrepresentablePrecision(t *testing.T) {
	_, err := New(Config{Precision: 20, MaxValue: 100})
	require.ErrorIs(t, err, ErrMemoryExceeded)
}

func TestRecord_Classification(t *testing.T) {
	h, err := New(Config{Precision: 1, MaxValue: 100})
	require.NoError(t, err)

	h.Increment(0)
	h.Increment(50)
	h.Increment(101)
	h.Record(0, 2)
	h.Record(200, 3)

	require.Equal(t, uint64(8), h.Entries())
	require.Equal(t, uint64(3), h.MissedSmall())
	require.Equal(t, uint64(4), h.MissedLarge())
	require.Zero(t, h.MissedUnknown())

	count, ok := h.Get(50)
	require.True(t, ok)
	require.Equal(t, uint64(1), count)
}

func TestGet(t *testing.T) {
	h, err := New(Config{Precision: 1, MaxValue: 100})
	require.NoError(t, err)

	h.Increment(1)
	h.Increment(1)
	h.Increment(2)

	count, ok := h.Get(1)
	require.True(t, ok)
	require.Equal(t, uint64(2), count)

	count, ok = h.Get(2)
	require.True(t, ok)
	require.Equal(t, uint64(1), count)

	count, ok = h.Get(3)
	require.True(t, ok)
	require.Zero(t, count)

	// Out of range values have no bucket and do not consult the missed
	// counters.
	_, ok = h.Get(0)
	require.False(t, ok)
	_, ok = h.Get(101)
	require.False(t, ok)
}

func TestRecord_Saturates(t *testing.T) {
	h, err := New(Config{Precision: 1, MaxValue: 100})
	require.NoError(t, err)

	h.Record(5, math.MaxUint64)
	h.Record(5, 10)

	require.Equal(t, uint64(math.MaxUint64), h.Entries())
	count, ok := h.Get(5)
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxUint64), count)
}

func TestEntries_MatchesRecordedCounts(t *testing.T) {
	h, err := New(Config{Precision: 2, MaxValue: 1000})
	require.NoError(t, err)

	var want uint64
	for v := uint64(1); v <= 100; v++ {
		h.Increment(v)
		want++
	}
	h.Record(250, 7)
	want += 7
	h.Record(2000, 3) // missed large, still an entry
	want += 3

	require.Equal(t, want, h.Entries())
}

func TestPercentile_Exact(t *testing.T) {
	// Precision 3 keeps 1..999 inside the linear region, so percentile
	// estimates are exact.
	h, err := New(Config{Precision: 3, MaxValue: 10000})
	require.NoError(t, err)

	for v := uint64(1); v <= 999; v++ {
		h.Increment(v)
	}

	tests := []struct {
		p    float64
		want uint64
	}{
		{0, 1},
		{25, 250},
		{50, 501},
		{90, 901},
		{99, 991},
		{99.9, 999},
		{100, 999},
	}

	for _, tt := range tests {
		v, err := h.Percentile(tt.p)
		require.NoError(t, err)
		require.Equal(t, tt.want, v, "percentile %v", tt.p)
	}
}

func TestPercentile_BoundedError(t *testing.T) {
	// With one significant digit the logarithmic region estimates within a
	// bucket width of the true value.
	h, err := New(Config{Precision: 1, MaxValue: 1000})
	require.NoError(t, err)

	for v := uint64(1); v <= 999; v++ {
		h.Increment(v)
	}

	p50, err := h.Percentile(50)
	require.NoError(t, err)
	require.InDelta(t, 501, float64(p50), 512.0/10, "bucket width at the median's band")

	p999, err := h.Percentile(99.9)
	require.NoError(t, err)
	require.InDelta(t, 999, float64(p999), 1024.0/10, "bucket width at the top band")
}

func TestPercentile_OutOfRange(t *testing.T) {
	h, err := New(Config{Precision: 1, MaxValue: 100})
	require.NoError(t, err)

	// Nothing recorded yet.
	_, err = h.Percentile(50)
	require.ErrorIs(t, err, ErrOutOfRange)

	h.Increment(10)

	_, err = h.Percentile(-0.1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = h.Percentile(100.1)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = h.Percentile(100)
	require.NoError(t, err)
}

func TestPercentile_SingleValue(t *testing.T) {
	h, err := New(Config{Precision: 1, MaxValue: 100})
	require.NoError(t, err)

	h.Increment(42)

	for _, p := range []float64{50, 90, 100} {
		v, err := h.Percentile(p)
		require.NoError(t, err)
		require.Equal(t, uint64(42), v)
	}
}

func TestMerge_DisjointHistograms(t *testing.T) {
	cfg := Config{Precision: 3, MaxValue: 10000}

	h1, err := New(cfg)
	require.NoError(t, err)
	h2, err := New(cfg)
	require.NoError(t, err)

	h1.Record(10, 4)
	h2.Record(20, 6)
	h2.Record(10, 1)

	h1.Merge(h2)

	require.Equal(t, uint64(11), h1.Entries())
	count, ok := h1.Get(10)
	require.True(t, ok)
	require.Equal(t, uint64(5), count)
	count, ok = h1.Get(20)
	require.True(t, ok)
	require.Equal(t, uint64(6), count)

	// other is untouched.
	require.Equal(t, uint64(7), h2.Entries())
	count, ok = h2.Get(20)
	require.True(t, ok)
	require.Equal(t, uint64(6), count)
}

func TestMerge_SelfDoubles(t *testing.T) {
	h, err := New(Config{Precision: 1, MaxValue: 1000})
	require.NoError(t, err)

	for _, v := range []uint64{3, 17, 500, 999} {
		h.Increment(v)
	}

	before := make(map[uint64]uint64)
	it := h.Iter()
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		if b.Count > 0 {
			before[b.ID] = b.Count
		}
	}

	h.Merge(h)

	it = h.Iter()
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		require.Equal(t, 2*before[b.ID], b.Count, "bucket %d", b.ID)
	}
	require.Equal(t, uint64(8), h.Entries())
}

func TestMerge_ThenResetDrains(t *testing.T) {
	cfg := Config{Precision: 1, MaxValue: 100}

	h1, err := New(cfg)
	require.NoError(t, err)
	h2, err := New(cfg)
	require.NoError(t, err)

	h2.Record(7, 3)

	h1.Merge(h2)
	h2.Reset()

	require.Equal(t, uint64(3), h1.Entries())
	require.Zero(t, h2.Entries())
	count, ok := h2.Get(7)
	require.True(t, ok)
	require.Zero(t, count)
}

func TestReset(t *testing.T) {
	h, err := New(Config{Precision: 1, MaxValue: 100})
	require.NoError(t, err)

	h.Increment(0)
	h.Increment(5)
	h.Increment(500)
	h.Reset()

	require.Zero(t, h.Entries())
	require.Zero(t, h.MissedSmall())
	require.Zero(t, h.MissedLarge())
	count, ok := h.Get(5)
	require.True(t, ok)
	require.Zero(t, count)

	// Geometry survives a reset.
	require.Equal(t, uint64(45), h.Buckets())
}

func TestSatAdd(t *testing.T) {
	require.Equal(t, uint64(5), satAdd(2, 3))
	require.Equal(t, uint64(math.MaxUint64), satAdd(math.MaxUint64, 1))
	require.Equal(t, uint64(math.MaxUint64), satAdd(math.MaxUint64, math.MaxUint64))
	require.Equal(t, uint64(math.MaxUint64-1), satAdd(math.MaxUint64-1, 0))
}
