package evreact

import (
	"container/heap"
)

// timerHeap orders armed timers by due time, then registration order.
type timerHeap []*Task

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// sweepMin is the heap size below which cancelled timers are only dropped
// lazily as they reach the head.
const sweepMin = 64

// AddTimer schedules callback to run once after interval seconds. Negative
// intervals run as soon as possible. Due times are whole milliseconds on the
// loop clock, so a timer may fire up to 1ms before interval has fully elapsed.
func (l *EventLoop) AddTimer(interval float64, callback func()) (*Task, error) {
	return l.addTimer(interval, callback, false)
}

// AddPeriodicTimer schedules callback every interval seconds until cancelled.
func (l *EventLoop) AddPeriodicTimer(interval float64, callback func()) (*Task, error) {
	return l.addTimer(interval, callback, true)
}

func (l *EventLoop) addTimer(interval float64, callback func(), periodic bool) (*Task, error) {
	ms, err := toMillis(interval)
	if err != nil {
		return nil, err
	}
	t := newTimedTask(callback, interval, ms, periodic)
	l.timerSeq++
	t.seq = l.timerSeq
	t.due = l.now() + ms
	heap.Push(&l.timers, t)
	return t, nil
}

// CancelTimer stops t from firing again. It is safe to call from within t's
// own callback and on timers that already fired.
func (l *EventLoop) CancelTimer(t *Task) {
	if t == nil || t.kind == KindDeferred || t.suspended {
		return
	}
	t.suspended = true
	if t.index >= 0 {
		l.cancelled++
	}
}

// FutureTick queues callback for the deferred drain of the current or next
// iteration. Callbacks queued while the drain runs wait for the next one.
func (l *EventLoop) FutureTick(callback func()) {
	l.deferred.Add(newDeferredTask(callback))
}

// sweepTimers drops cancelled timers. Heads are always popped; the whole heap
// is rebuilt once cancelled entries make up more than half of it.
func (l *EventLoop) sweepTimers() {
	if l.cancelled > sweepMin && l.cancelled*2 > len(l.timers) {
		live := l.timers[:0]
		for _, t := range l.timers {
			if t.suspended {
				t.index = -1
				continue
			}
			live = append(live, t)
		}
		for i := len(live); i < len(l.timers); i++ {
			l.timers[i] = nil
		}
		l.timers = live
		for i, t := range l.timers {
			t.index = i
		}
		heap.Init(&l.timers)
		l.cancelled = 0
	}
	for len(l.timers) > 0 && l.timers[0].suspended {
		heap.Pop(&l.timers)
		l.cancelled--
	}
	if l.cancelled < 0 || len(l.timers) == 0 {
		l.cancelled = 0
	}
}

// runTimers fires every timer due at the start of the pass. Timers armed or
// re-armed by callbacks wait for a later iteration, so zero intervals cannot
// starve polling.
func (l *EventLoop) runTimers() {
	now := l.now()
	batch := l.firing[:0]
	for len(l.timers) > 0 && l.timers[0].due <= now {
		t := heap.Pop(&l.timers).(*Task)
		if t.suspended {
			l.cancelled--
			continue
		}
		batch = append(batch, t)
	}
	if l.cancelled < 0 {
		l.cancelled = 0
	}
	if len(batch) == 0 {
		return
	}

	i := 0
	defer func() {
		// a panicking callback leaves the rest of the pass armed
		if i < len(batch) {
			l.settleTimer(batch[i], now)
			for _, t := range batch[i+1:] {
				if !t.suspended {
					heap.Push(&l.timers, t)
				}
			}
		}
		for j := range batch {
			batch[j] = nil
		}
		l.firing = batch[:0]
	}()

	for ; i < len(batch); i++ {
		t := batch[i]
		if t.suspended {
			continue
		}
		t.execute()
		l.settleTimer(t, now)
	}
}

// settleTimer re-arms a periodic timer relative to its fire time unless it
// was cancelled while running. One-shots are finished either way.
func (l *EventLoop) settleTimer(t *Task, firedAt int64) {
	if t.kind != KindPeriodic {
		t.suspended = true
		return
	}
	if t.suspended || t.index >= 0 {
		return
	}
	t.due = firedAt + t.delay
	heap.Push(&l.timers, t)
}

// runDeferred drains the future tick queue as it was when the drain began.
func (l *EventLoop) runDeferred() {
	n := l.deferred.Length()
	for i := 0; i < n; i++ {
		t := l.deferred.Remove().(*Task)
		if t.suspended {
			continue
		}
		t.execute()
	}
}

// nextTimeout returns the poll timeout in milliseconds, -1 to block until
// readiness, or ok false when nothing can ever wake the loop.
func (l *EventLoop) nextTimeout() (timeout int, ok bool) {
	if l.deferred.Length() > 0 {
		return 0, true
	}
	if len(l.timers) > 0 {
		wait := l.timers[0].due - l.now()
		if wait <= 0 {
			return 0, true
		}
		if wait > maxPollTimeout {
			wait = maxPollTimeout
		}
		return int(wait), true
	}
	if len(l.streams) > 0 || l.signals.Len() > 0 {
		return -1, true
	}
	return 0, false
}
