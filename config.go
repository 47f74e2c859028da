package histogram

import (
	"flag"
)

const (
	// DefaultPrecision keeps three significant decimal digits, enough for
	// per-mille accurate latency percentiles.
	DefaultPrecision = 3

	// DefaultMaxValue covers one minute expressed in nanoseconds.
	DefaultMaxValue = 60_000_000_000
)

// Config holds construction options for a Histogram. It is immutable after
// the histogram is built; changing precision or range requires constructing
// a new histogram.
type Config struct {
	// Precision is the number of decimal significant digits preserved in
	// the logarithmic region.
	Precision uint `yaml:"precision"`

	// MaxValue is the inclusive upper bound on recordable values. Values
	// above it are tallied in the missed-large counter instead of a bucket.
	MaxValue uint64 `yaml:"max_value"`

	// MaxMemory caps the counter store size in bytes. Zero means unlimited.
	MaxMemory uint64 `yaml:"max_memory"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.UintVar(&cfg.Precision, prefixFlag(prefix, "precision"), DefaultPrecision, "Significant decimal digits preserved by the histogram.")
	f.Uint64Var(&cfg.MaxValue, prefixFlag(prefix, "max-value"), DefaultMaxValue, "Largest recordable value (inclusive).")
	f.Uint64Var(&cfg.MaxMemory, prefixFlag(prefix, "max-memory"), 0, "Memory budget for bucket counters in bytes. 0 disables the limit.")
}

func prefixFlag(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
