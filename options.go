package evreact

import (
	"time"

	"github.com/dreamans/evreact/evlog"
	"github.com/dreamans/evreact/poller"
)

type Options struct {
	// Poller overrides the platform poller. The loop takes ownership and
	// closes it in Close.
	Poller poller.Poller
	// SignalWatcher overrides os/signal based forwarding.
	SignalWatcher SignalWatcher
	Logger        evlog.Logger
	// MaxEvents sizes the initial poller event buffer.
	MaxEvents int
	Clock     func() time.Time
}

func NewOptions() *Options {
	return &Options{}
}

func (opts *Options) SetPoller(p poller.Poller) *Options {
	opts.Poller = p
	return opts
}

func (opts *Options) SetSignalWatcher(w SignalWatcher) *Options {
	opts.SignalWatcher = w
	return opts
}

func (opts *Options) SetLogger(l evlog.Logger) *Options {
	opts.Logger = l
	return opts
}

func (opts *Options) SetMaxEvents(n int) *Options {
	opts.MaxEvents = n
	return opts
}

func (opts *Options) SetClock(fn func() time.Time) *Options {
	opts.Clock = fn
	return opts
}

func (opts *Options) withDefaults() Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = evlog.Default()
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = poller.DefaultMaxEvents
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
