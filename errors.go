package histogram

import "errors"

// Error kinds returned by this package. Callers branch on them with
// errors.Is; the surrounding message text carries detail only.
var (
	// ErrMemoryExceeded is returned by New when the counter store for the
	// requested geometry does not fit within Config.MaxMemory, or when the
	// geometry itself cannot be represented.
	ErrMemoryExceeded = errors.New("histogram: memory limit exceeded")

	// ErrOutOfRange is returned by Percentile when the requested percentile
	// lies outside [0, 100] or the histogram holds no entries.
	ErrOutOfRange = errors.New("histogram: out of range")
)
