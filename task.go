package evreact

import (
	"fmt"
	"math"
)

type TaskKind uint8

const (
	// KindTimer fires once after its interval.
	KindTimer TaskKind = iota
	// KindPeriodic re-arms with the same interval after every firing.
	KindPeriodic
	// KindDeferred runs once at the next drain of the future tick queue.
	KindDeferred
)

func (k TaskKind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindPeriodic:
		return "periodic"
	case KindDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("TaskKind(%d)", uint8(k))
	}
}

// Task is a unit of scheduled work. Timers returned by AddTimer and
// AddPeriodicTimer are Tasks and double as the handle for CancelTimer.
//
// Once suspended a Task never runs again; the loop drops it at its next
// scheduled check.
type Task struct {
	kind      TaskKind
	suspended bool
	callback  func()

	interval float64 // seconds, as requested
	delay    int64   // milliseconds

	due   int64 // loop clock, milliseconds
	seq   uint64
	index int // heap slot, -1 when not armed
}

func newTimedTask(callback func(), interval float64, delay int64, periodic bool) *Task {
	kind := KindTimer
	if periodic {
		kind = KindPeriodic
	}
	return &Task{
		kind:     kind,
		callback: callback,
		interval: interval,
		delay:    delay,
		index:    -1,
	}
}

func newDeferredTask(callback func()) *Task {
	return &Task{
		kind:     KindDeferred,
		callback: callback,
		index:    -1,
	}
}

func (t *Task) Kind() TaskKind { return t.kind }

// Interval is the interval in seconds as passed by the caller, before clamping.
func (t *Task) Interval() float64 { return t.interval }

func (t *Task) IsPeriodic() bool { return t.kind == KindPeriodic }

func (t *Task) Suspended() bool { return t.suspended }

func (t *Task) Callback() func() { return t.callback }

// execute runs the task once. Periodic tasks are left armed, the scheduler
// decides on re-arming after looking at suspended.
func (t *Task) execute() {
	switch t.kind {
	case KindTimer, KindDeferred:
		if t.callback != nil {
			t.callback()
		}
		t.suspended = true
	case KindPeriodic:
		if t.callback != nil {
			t.callback()
		}
	}
}

const maxIntervalSeconds = math.MaxInt64 / 1000

// toMillis converts fractional seconds to whole milliseconds, rounding down.
// Negative intervals clamp to zero.
func toMillis(seconds float64) (int64, error) {
	if math.IsNaN(seconds) {
		return 0, fmt.Errorf("%w: interval is NaN", ErrIntervalOverflow)
	}
	if seconds < 0 {
		return 0, nil
	}
	if seconds >= maxIntervalSeconds {
		return 0, fmt.Errorf("%w: value must be lower than '%d', but '%v' passed", ErrIntervalOverflow, int64(maxIntervalSeconds), seconds)
	}
	return int64(math.Floor(seconds * 1000)), nil
}
