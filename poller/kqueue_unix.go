//go:build darwin || netbsd || freebsd || openbsd || dragonfly
// +build darwin netbsd freebsd openbsd dragonfly

package poller

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evreact/util"
)

type KQueue struct {
	fd      int
	wakeR   int
	wakeW   int
	events  []unix.Kevent_t
	watched map[int]Event
	wakeBuf []byte
	closed  atomic.Bool
}

func New(maxEvents int) (Poller, error) {
	return KQueueCreate(maxEvents)
}

func KQueueCreate(maxEvents int) (*KQueue, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	for _, pfd := range p {
		unix.CloseOnExec(pfd)
		if err := unix.SetNonblock(pfd, true); err != nil {
			_ = unix.Close(fd)
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, err
		}
	}

	kq := &KQueue{
		fd:      fd,
		wakeR:   p[0],
		wakeW:   p[1],
		events:  make([]unix.Kevent_t, normalizeMaxEvents(maxEvents)),
		watched: make(map[int]Event),
		wakeBuf: make([]byte, 64),
	}

	if err := kq.change(kq.wakeR, unix.EVFILT_READ, unix.EV_ADD); err != nil {
		_ = kq.closeAll()
		return nil, err
	}
	return kq, nil
}

func (kq *KQueue) Watch(fd int, events Event) (int, error) {
	if kq.closed.Load() {
		return 0, ErrClosed
	}

	old := kq.watched[fd]
	var changes []unix.Kevent_t
	changes = appendFilter(changes, fd, unix.EVFILT_READ, old&EventRead, events&EventRead)
	changes = appendFilter(changes, fd, unix.EVFILT_WRITE, old&EventWrite, events&EventWrite)
	if len(changes) > 0 {
		if _, err := unix.Kevent(kq.fd, changes, nil, nil); err != nil {
			return 0, err
		}
	}
	kq.watched[fd] = events
	return fd, nil
}

func (kq *KQueue) Unwatch(id int) error {
	if kq.closed.Load() {
		return ErrClosed
	}
	old, ok := kq.watched[id]
	if !ok {
		return ErrNotWatched
	}
	delete(kq.watched, id)

	var changes []unix.Kevent_t
	changes = appendFilter(changes, id, unix.EVFILT_READ, old&EventRead, 0)
	changes = appendFilter(changes, id, unix.EVFILT_WRITE, old&EventWrite, 0)
	if len(changes) == 0 {
		return nil
	}
	// Closing a descriptor drops its filters, ENOENT/EBADF just means that happened first.
	_, err := unix.Kevent(kq.fd, changes, nil, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

func (kq *KQueue) Wait(timeoutMs int, ready []Ready) ([]Ready, error) {
	if kq.closed.Load() {
		return ready, ErrClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(time.Duration(timeoutMs) * time.Millisecond))
		ts = &t
	}

	n, err := unix.Kevent(kq.fd, nil, kq.events, ts)
	if err != nil {
		if util.IsInterrupted(err) {
			return ready, nil
		}
		return ready, err
	}

	for i := 0; i < n; i++ {
		ev := kq.events[i]
		fd := int(ev.Ident)
		if fd == kq.wakeR {
			kq.drainWake()
			continue
		}

		var event Event
		switch ev.Filter {
		case unix.EVFILT_READ:
			event |= EventRead
		case unix.EVFILT_WRITE:
			event |= EventWrite
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			event |= EventErr
		}
		if ev.Flags&unix.EV_EOF != 0 {
			event |= EventHup
		}
		ready = mergeReady(ready, fd, event)
	}

	if n == len(kq.events) {
		kq.events = make([]unix.Kevent_t, int(float64(n)*1.5))
	}
	return ready, nil
}

func (kq *KQueue) Trigger() error {
	if kq.closed.Load() {
		return ErrClosed
	}
	_, err := unix.Write(kq.wakeW, []byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (kq *KQueue) Close() error {
	if kq.closed.Swap(true) {
		return ErrClosed
	}
	return kq.closeAll()
}

func (kq *KQueue) closeAll() error {
	_ = unix.Close(kq.wakeR)
	_ = unix.Close(kq.wakeW)
	return unix.Close(kq.fd)
}

func (kq *KQueue) drainWake() {
	for {
		n, err := unix.Read(kq.wakeR, kq.wakeBuf)
		if n <= 0 || err != nil {
			return
		}
	}
}

func (kq *KQueue) change(fd int, filter int, flags int) error {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, filter, flags)
	_, err := unix.Kevent(kq.fd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func appendFilter(changes []unix.Kevent_t, fd int, filter int, had, want Event) []unix.Kevent_t {
	var ev unix.Kevent_t
	switch {
	case had == 0 && want != 0:
		unix.SetKevent(&ev, fd, filter, unix.EV_ADD)
	case had != 0 && want == 0:
		unix.SetKevent(&ev, fd, filter, unix.EV_DELETE)
	default:
		return changes
	}
	return append(changes, ev)
}

// kqueue reports read and write as separate kevents, fold them per descriptor.
func mergeReady(ready []Ready, fd int, event Event) []Ready {
	for i := range ready {
		if ready[i].Fd == fd {
			ready[i].Events |= event
			return ready
		}
	}
	return append(ready, Ready{Fd: fd, Events: event})
}
