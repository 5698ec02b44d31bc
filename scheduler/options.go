package scheduler

import (
	"time"

	"github.com/gnunet-go/scheduler/internal/obslog"
)

// options holds configuration resolved from a slice of Option values, the
// same functional-options shape the teacher package uses for its Loop type
// (joeycumines-go-utilpkg/eventloop/options.go's loopOptions/LoopOption).
type options struct {
	logger            *obslog.Logger
	busyLoopThreshold int
	busyLoopWindow    time.Duration
}

// Option configures a Scheduler constructed via New.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger configures the structured logger the scheduler reports
// diagnostics to (busy-loop warnings, fatal multiplexer errors). Defaults to
// a disabled logger.
func WithLogger(logger *obslog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = logger })
}

// WithBusyLoopGuard configures the busy-loop detector from spec.md §4.1:
// after threshold consecutive zero-timeout iterations with no dispatch
// progress, the scheduler logs a warning and sleeps briefly, at most once
// per window (via an internal catrate.Limiter), to avoid spamming logs while
// the underlying bug (a task that re-schedules itself at zero delay forever)
// is investigated.
func WithBusyLoopGuard(threshold int, window time.Duration) Option {
	return optionFunc(func(o *options) {
		o.busyLoopThreshold = threshold
		o.busyLoopWindow = window
	})
}

func resolveOptions(opts []Option) *options {
	o := &options{
		logger:            obslog.Disabled(),
		busyLoopThreshold: 16,
		busyLoopWindow:    time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}
	return o
}
