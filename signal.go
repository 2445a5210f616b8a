package evreact

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type SignalListener func(signal int)

// SignalWatcher forwards OS signals to the loop. Watch and Unwatch are called
// from the loop goroutine; delivery happens through the notify function given
// to the watcher at construction.
type SignalWatcher interface {
	Watch(signal int) error
	Unwatch(signal int) error
	Close() error
}

// SignalRouter holds at most one listener per signal number.
type SignalRouter struct {
	listeners map[int]SignalListener
}

func newSignalRouter() *SignalRouter {
	return &SignalRouter{listeners: make(map[int]SignalListener)}
}

func (r *SignalRouter) Len() int { return len(r.listeners) }

// set installs l and reports whether the number was new.
func (r *SignalRouter) set(sig int, l SignalListener) bool {
	_, had := r.listeners[sig]
	r.listeners[sig] = l
	return !had
}

func (r *SignalRouter) remove(sig int) bool {
	if _, ok := r.listeners[sig]; !ok {
		return false
	}
	delete(r.listeners, sig)
	return true
}

func (r *SignalRouter) Dispatch(sig int) {
	if l, ok := r.listeners[sig]; ok && l != nil {
		l(sig)
	}
}

// AddSignal installs listener for sig, replacing any previous one.
func (l *EventLoop) AddSignal(sig int, listener SignalListener) error {
	if l.closed {
		return ErrLoopClosed
	}
	if _, ok := l.signals.listeners[sig]; !ok {
		if err := l.watcher.Watch(sig); err != nil {
			return err
		}
	}
	l.signals.set(sig, listener)
	l.logger.Debugf("[AddSignal]: %d", sig)
	return nil
}

// RemoveSignal uninstalls the listener for sig. The listener argument is not
// compared against the installed one; nothing installed is a no-op.
func (l *EventLoop) RemoveSignal(sig int, listener SignalListener) {
	if !l.signals.remove(sig) {
		return
	}
	if err := l.watcher.Unwatch(sig); err != nil {
		l.logger.Errorf("[SignalWatcher.Unwatch]: %d: %s", sig, err.Error())
	}
	l.logger.Debugf("[RemoveSignal]: %d", sig)
}

// DispatchSignal runs the listener for sig, if any. Hosts that receive
// signals themselves call this from the loop goroutine.
func (l *EventLoop) DispatchSignal(sig int) {
	l.signals.Dispatch(sig)
}

// pendingSignals collects numbers raised off the loop goroutine.
type pendingSignals struct {
	mu   sync.Mutex
	sigs []int
}

func (p *pendingSignals) push(sig int) {
	p.mu.Lock()
	p.sigs = append(p.sigs, sig)
	p.mu.Unlock()
}

func (p *pendingSignals) take(buf []int) []int {
	p.mu.Lock()
	buf = append(buf, p.sigs...)
	p.sigs = p.sigs[:0]
	p.mu.Unlock()
	return buf
}

func (l *EventLoop) notifySignal(sig int) {
	l.pending.push(sig)
	if err := l.poller.Trigger(); err != nil {
		l.logger.Errorf("[poller.Trigger]: %s", err.Error())
	}
}

func (l *EventLoop) dispatchPendingSignals() {
	l.sigBuf = l.pending.take(l.sigBuf[:0])
	for _, sig := range l.sigBuf {
		l.signals.Dispatch(sig)
	}
}

type osSignalWatcher struct {
	notify  func(int)
	ch      chan os.Signal
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	watched map[int]struct{}
}

func newOSSignalWatcher(notify func(int)) *osSignalWatcher {
	return &osSignalWatcher{
		notify:  notify,
		ch:      make(chan os.Signal, 16),
		done:    make(chan struct{}),
		watched: make(map[int]struct{}),
	}
}

func (w *osSignalWatcher) Watch(sig int) error {
	w.once.Do(func() {
		w.wg.Add(1)
		go w.forward()
	})
	w.watched[sig] = struct{}{}
	signal.Notify(w.ch, syscall.Signal(sig))
	return nil
}

// Unwatch unsubscribes only this watcher's channel and then re-subscribes the
// numbers still watched.
func (w *osSignalWatcher) Unwatch(sig int) error {
	if _, ok := w.watched[sig]; !ok {
		return nil
	}
	delete(w.watched, sig)
	signal.Stop(w.ch)
	if len(w.watched) == 0 {
		return nil
	}
	sigs := make([]os.Signal, 0, len(w.watched))
	for n := range w.watched {
		sigs = append(sigs, syscall.Signal(n))
	}
	signal.Notify(w.ch, sigs...)
	return nil
}

// Close returns once the forwarding goroutine has exited, so notify is never
// called afterwards.
func (w *osSignalWatcher) Close() error {
	signal.Stop(w.ch)
	w.watched = make(map[int]struct{})
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	w.wg.Wait()
	return nil
}

func (w *osSignalWatcher) forward() {
	defer w.wg.Done()
	for {
		select {
		case s := <-w.ch:
			if sig, ok := s.(syscall.Signal); ok {
				w.notify(int(sig))
			}
		case <-w.done:
			return
		}
	}
}
