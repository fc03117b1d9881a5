package sxlock

import (
	"math/bits"

	metrics "github.com/rcrowley/go-metrics"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	// DefaultSpinBudget is the number of fast-path retries an FSLock makes
	// before parking.
	DefaultSpinBudget = 128

	// DefaultWaitTableSize is the number of wait-queue buckets per FSLock.
	DefaultWaitTableSize = 64
)

// FSLockConfig defines configurable options for FSLock initialization.
type FSLockConfig struct {
	// spinBudget is the number of pause-and-retry iterations before a
	// contender parks. Zero sends every contended Lock straight to the
	// wait table.
	spinBudget int

	// tableSize is the number of wait-queue buckets, a power of two.
	tableSize int

	// condPool bounds the number of dedicated condition variables kept for
	// parked threads. Threads parking beyond it share the lock's fallback
	// condition variable and are woken by broadcast.
	condPool int

	// metrics, when set, receives acquisition counters and wait/hold
	// timers named "<lock>.<metric>".
	metrics metrics.Registry

	// timing, when set, receives entry/exit records for Lock and Unlock.
	timing Logger
}

func defaultFSLockConfig() FSLockConfig {
	return FSLockConfig{
		spinBudget: DefaultSpinBudget,
		tableSize:  DefaultWaitTableSize,
		condPool:   -1,
	}
}

// WithSpinBudget sets the number of spin iterations before parking.
// Negative values are treated as zero.
func WithSpinBudget(n int) func(*FSLockConfig) {
	return func(c *FSLockConfig) {
		c.spinBudget = max(n, 0)
	}
}

// WithWaitTableSize sets the number of wait-queue buckets. The size is
// rounded up to the next power of 2; values below 1 are ignored.
func WithWaitTableSize(n int) func(*FSLockConfig) {
	return func(c *FSLockConfig) {
		if n > 0 {
			c.tableSize = 1 << bits.Len(uint(n-1))
		}
	}
}

// WithCondPool bounds the number of dedicated condition variables the lock
// keeps for parked threads. The default equals the wait table size. Zero
// makes every parked thread use the shared fallback condition variable.
func WithCondPool(n int) func(*FSLockConfig) {
	return func(c *FSLockConfig) {
		c.condPool = max(n, 0)
	}
}

// WithMetrics registers the lock's contention metrics in r:
//
//	<name>.acquire.fast    counter, first-try acquisitions
//	<name>.acquire.spin    counter, acquisitions during the spin phase
//	<name>.acquire.parked  counter, acquisitions after parking
//	<name>.wait            timer, time spent parked
//	<name>.hold            timer, time between acquire and release
func WithMetrics(r metrics.Registry) func(*FSLockConfig) {
	return func(c *FSLockConfig) {
		c.metrics = r
	}
}

// WithTimingLog enables entry/exit timing records for Lock and Unlock.
func WithTimingLog(l Logger) func(*FSLockConfig) {
	return func(c *FSLockConfig) {
		c.timing = l
	}
}

// fsMetrics is the go-metrics view of one FSLock.
type fsMetrics struct {
	fast   metrics.Counter
	spin   metrics.Counter
	parked metrics.Counter
	wait   metrics.Timer
	hold   metrics.Timer
}

func newFSMetrics(name string, r metrics.Registry) *fsMetrics {
	return &fsMetrics{
		fast:   metrics.GetOrRegisterCounter(name+".acquire.fast", r),
		spin:   metrics.GetOrRegisterCounter(name+".acquire.spin", r),
		parked: metrics.GetOrRegisterCounter(name+".acquire.parked", r),
		wait:   metrics.GetOrRegisterTimer(name+".wait", r),
		hold:   metrics.GetOrRegisterTimer(name+".hold", r),
	}
}
