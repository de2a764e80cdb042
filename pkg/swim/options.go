package swim

import (
	"github.com/benbjohnson/clock"

	"github.com/andydunstall/swim/pkg/log"
)

type options struct {
	clock   clock.Clock
	watcher Watcher
	metrics *Metrics
	logger  log.Logger
}

type Option interface {
	apply(*options)
}

type clockOption struct {
	Clock clock.Clock
}

func (o clockOption) apply(opts *options) {
	opts.clock = o.Clock
}

// WithClock configures the clock used to record when members were last
// heard from. Defaults to the system clock.
func WithClock(c clock.Clock) Option {
	return clockOption{Clock: c}
}

type watcherOption struct {
	Watcher Watcher
}

func (o watcherOption) apply(opts *options) {
	opts.watcher = o.Watcher
}

// WithWatcher configures a watcher to be notified of membership changes.
func WithWatcher(watcher Watcher) Option {
	return watcherOption{Watcher: watcher}
}

type metricsOption struct {
	Metrics *Metrics
}

func (o metricsOption) apply(opts *options) {
	opts.metrics = o.Metrics
}

// WithMetrics configures the node metrics. Defaults to unregistered
// metrics.
func WithMetrics(metrics *Metrics) Option {
	return metricsOption{Metrics: metrics}
}

type loggerOption struct {
	Logger log.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.logger = o.Logger
}

// WithLogger configures the logger. Defaults to no output.
func WithLogger(logger log.Logger) Option {
	return loggerOption{Logger: logger}
}
