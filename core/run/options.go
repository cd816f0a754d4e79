package run

import (
	"time"

	"github.com/kilianp07/chargesim/core/logger"
	"github.com/kilianp07/chargesim/core/metrics"
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/internal/eventbus"
)

// Option customises a Runner.
type Option func(*Runner)

// WithSink sets the metrics sink notified of sessions and allocations.
func WithSink(s metrics.MetricsSink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithBus publishes run, session and throttle events on b.
func WithBus(b eventbus.EventBus) Option {
	return func(r *Runner) { r.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithStep sets the simulated seconds per tick.
func WithStep(seconds float64) Option {
	return func(r *Runner) {
		if seconds > 0 {
			r.step = seconds
		}
	}
}

// WithPercentile sets the percentile reported next to averages.
func WithPercentile(p float64) Option {
	return func(r *Runner) { r.percentile = p }
}

// WithPrecision rounds the report to the given number of decimals. A
// negative value disables rounding.
func WithPrecision(decimals int) Option {
	return func(r *Runner) { r.precision = decimals }
}

// WithGroupSize overrides the number of points per group used to build
// queue zones and the stations-used ratio. Zero uses the engine's groups.
func WithGroupSize(n int) Option {
	return func(r *Runner) { r.groupSize = n }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithClock replaces time.Now for the report timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func (r *Runner) groupSizes(groups []model.Group) map[model.GroupID]int {
	sizes := make(map[model.GroupID]int, len(groups))
	for _, g := range groups {
		n := len(g.Points)
		if r.groupSize > 0 {
			n = r.groupSize
		}
		sizes[g.ID] = n
	}
	return sizes
}
