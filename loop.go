// Package evreact is a single-threaded reactive event loop. It multiplexes
// descriptor readiness, one-shot and periodic timers, deferred callbacks and
// OS signals through one scheduler driven by Run.
//
// All methods except Stop must be called from the goroutine running the loop
// (or before Run). Callbacks run one at a time and may freely add, remove or
// cancel anything, including themselves.
//
// Each iteration polls for readiness, then dispatches streams, pending
// signals, due timers and finally the deferred queue, in that order.
package evreact

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/dreamans/evreact/evlog"
	"github.com/dreamans/evreact/poller"
	"github.com/dreamans/evreact/util"
)

type LoopState int32

const (
	StateIdle LoopState = iota
	StateRunning
	StateStopped
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("LoopState(%d)", int32(s))
	}
}

const maxPollTimeout = math.MaxInt32

type EventLoop struct {
	poller  poller.Poller
	watcher SignalWatcher
	logger  evlog.Logger
	clock   func() time.Time
	epoch   time.Time

	state   atomic.Int32
	closed  bool
	running bool

	streams map[int]*registration
	ready   []poller.Ready

	timers    timerHeap
	firing    []*Task
	timerSeq  uint64
	cancelled int
	deferred  *queue.Queue

	signals *SignalRouter
	pending pendingSignals
	sigBuf  []int
}

// New creates a loop. It fails if the platform has no readiness primitive.
func New(opts *Options) (*EventLoop, error) {
	o := opts.withDefaults()

	p := o.Poller
	if p == nil {
		var err error
		if p, err = poller.New(o.MaxEvents); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPollerUnavailable, err)
		}
	}

	l := &EventLoop{
		poller:   p,
		logger:   o.Logger,
		clock:    o.Clock,
		streams:  make(map[int]*registration),
		ready:    make([]poller.Ready, 0, o.MaxEvents),
		deferred: queue.New(),
		signals:  newSignalRouter(),
	}
	l.epoch = l.clock()
	l.watcher = o.SignalWatcher
	if l.watcher == nil {
		l.watcher = newOSSignalWatcher(l.notifySignal)
	}
	return l, nil
}

func (l *EventLoop) State() LoopState {
	return LoopState(l.state.Load())
}

// now is the loop clock in whole milliseconds since construction.
func (l *EventLoop) now() int64 {
	return l.clock().Sub(l.epoch).Milliseconds()
}

// Run drives the loop until Stop is called or there is nothing left that could
// ever fire. It may be called again after it returns.
//
// Panics raised by callbacks are not recovered; they unwind out of Run with the
// loop left stopped and its tables intact.
func (l *EventLoop) Run() error {
	if l.closed {
		return ErrLoopClosed
	}
	if l.running {
		return ErrLoopRunning
	}
	l.running = true
	l.state.Store(int32(StateRunning))
	l.logger.Debugf("[Run]: start")

	defer func() {
		l.running = false
		l.state.Store(int32(StateStopped))
		l.logger.Debugf("[Run]: stop")
	}()

	for l.State() == StateRunning {
		more, err := l.tick()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// tick runs one iteration. It reports false when the loop has no work left.
func (l *EventLoop) tick() (bool, error) {
	l.sweepTimers()

	timeout, ok := l.nextTimeout()
	if !ok {
		return false, nil
	}

	ready, err := l.poller.Wait(timeout, l.ready[:0])
	if err != nil {
		if !util.TemporaryErr(err) {
			return false, fmt.Errorf("poll: %w", err)
		}
		l.logger.Warnf("[poller.Wait]: %s", err.Error())
		ready = ready[:0]
	}
	l.ready = ready

	l.dispatchStreams(ready)
	l.dispatchPendingSignals()
	l.runTimers()
	l.runDeferred()
	return true, nil
}

// Stop makes Run return once the current iteration has finished. It is a no-op
// when the loop is not running and may be called from any goroutine.
func (l *EventLoop) Stop() {
	if !l.state.CompareAndSwap(int32(StateRunning), int32(StateStopped)) {
		return
	}
	if err := l.poller.Trigger(); err != nil {
		l.logger.Errorf("[poller.Trigger]: %s", err.Error())
	}
}

// Exit stops the loop if it is running.
func (l *EventLoop) Exit() {
	if l.State() != StateRunning {
		return
	}
	l.Stop()
}

// Close releases the poller and signal forwarding. The loop cannot be used
// afterwards.
func (l *EventLoop) Close() error {
	if l.closed {
		return ErrLoopClosed
	}
	l.closed = true
	l.Stop()
	_ = l.watcher.Close()
	return l.poller.Close()
}
