// Package diag exports the contention state of registered locks to a
// statsd daemon, one gauge per counter.
package diag

import (
	"context"
	"time"

	"github.com/cactus/go-statsd-client/statsd"

	"github.com/storagesync/sxlock"
)

// DefaultInterval is the reporting period used by Run.
const DefaultInterval = 10 * time.Second

// Reporter pushes Registry snapshots as statsd gauges named
// "<kind>.<name>.<field>".
type Reporter struct {
	reg      *sxlock.Registry
	client   statsd.Statter
	interval time.Duration
	logger   sxlock.Logger
}

// ReporterConfig defines configurable options for a Reporter.
type ReporterConfig struct {
	interval time.Duration
	logger   sxlock.Logger
}

// WithInterval sets the period of Run. Non-positive values are ignored.
func WithInterval(d time.Duration) func(*ReporterConfig) {
	return func(c *ReporterConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets where send failures are reported. Without it they are
// dropped.
func WithLogger(l sxlock.Logger) func(*ReporterConfig) {
	return func(c *ReporterConfig) {
		c.logger = l
	}
}

// Dial returns an unbuffered statsd client for addr ("host:port") whose
// stats are prefixed with prefix.
func Dial(addr, prefix string) (statsd.Statter, error) {
	return statsd.NewClient(addr, prefix)
}

// NewReporter returns a Reporter for reg sending through client.
func NewReporter(reg *sxlock.Registry, client statsd.Statter, options ...func(*ReporterConfig)) *Reporter {
	c := ReporterConfig{interval: DefaultInterval}
	for _, o := range options {
		o(&c)
	}
	return &Reporter{
		reg:      reg,
		client:   client,
		interval: c.interval,
		logger:   c.logger,
	}
}

// Report sends one snapshot. It returns the first send error after trying
// every gauge.
func (r *Reporter) Report() error {
	var first error
	for _, d := range r.reg.Snapshot() {
		for _, g := range gauges(d) {
			if err := r.client.Gauge(g.stat, g.value, 1.0); err != nil {
				if r.logger != nil {
					r.logger.Printf("diag: gauge %s: %v", g.stat, err)
				}
				if first == nil {
					first = err
				}
			}
		}
	}
	return first
}

// Run reports every interval until ctx is done. Send failures do not stop
// it.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = r.Report()
		}
	}
}

type gauge struct {
	stat  string
	value int64
}

// gauges lists the fields that apply to d's kind.
func gauges(d sxlock.Diagnostics) []gauge {
	prefix := string(d.Kind) + "." + d.Name + "."
	switch d.Kind {
	case sxlock.KindCondVar:
		return []gauge{{prefix + "waiters", int64(d.Waiters)}}
	case sxlock.KindFSLock:
		return []gauge{
			{prefix + "contenders", int64(d.Contenders)},
			{prefix + "blockers", int64(d.Blockers)},
			{prefix + "last_acquire", d.LastAcquire},
			{prefix + "last_release", d.LastRelease},
		}
	default:
		return []gauge{{prefix + "queued", int64(d.Queued)}}
	}
}
