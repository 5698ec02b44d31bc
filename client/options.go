package client

import (
	"time"

	"github.com/gnunet-go/scheduler/internal/obslog"
)

// options mirrors the teacher's functional-options shape (see
// scheduler.Option), scoped to what a Connection needs configured.
type options struct {
	logger            *obslog.Logger
	maxFrameSize      int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	receiveBufferSize int
}

// Option configures a Connection constructed via Connect.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger configures structured logging of reconnect/backoff
// transitions and tokenizer resync events.
func WithLogger(logger *obslog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = logger })
}

// WithMaxFrameSize bounds the size a single inbound frame may declare,
// guarding against a misbehaving peer exhausting memory. 0 means no limit.
func WithMaxFrameSize(max int) Option {
	return optionFunc(func(o *options) { o.maxFrameSize = max })
}

// WithBackoff configures the reconnect backoff's initial interval and
// ceiling (spec.md §4.3).
func WithBackoff(initial, max time.Duration) Option {
	return optionFunc(func(o *options) {
		o.initialBackoff = initial
		o.maxBackoff = max
	})
}

// WithReceiveBufferSize sets the chunk size used for each transport Read.
func WithReceiveBufferSize(size int) Option {
	return optionFunc(func(o *options) { o.receiveBufferSize = size })
}

func resolveOptions(opts []Option) *options {
	o := &options{
		logger:            obslog.Disabled(),
		maxFrameSize:      1 << 20,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        30 * time.Second,
		receiveBufferSize: 4096,
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(o)
		}
	}
	return o
}
