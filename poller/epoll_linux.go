//go:build linux
// +build linux

package poller

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/dreamans/evreact/util"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	writeEvents = unix.EPOLLOUT
)

var wakeWriteBytes = []byte{1, 0, 0, 0, 0, 0, 0, 0}

type Epoll struct {
	fd      int
	eventFd int
	events  []unix.EpollEvent
	watched map[int]Event
	wakeBuf []byte
	closed  atomic.Bool
}

func New(maxEvents int) (Poller, error) {
	return EpollCreate(maxEvents)
}

func EpollCreate(maxEvents int) (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	efd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	ep := &Epoll{
		fd:      fd,
		eventFd: efd,
		events:  make([]unix.EpollEvent, normalizeMaxEvents(maxEvents)),
		watched: make(map[int]Event),
		wakeBuf: make([]byte, 8),
	}

	if err := ep.ctl(unix.EPOLL_CTL_ADD, efd, unix.EPOLLIN); err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(efd)
		return nil, err
	}

	return ep, nil
}

func (ep *Epoll) Watch(fd int, events Event) (int, error) {
	if ep.closed.Load() {
		return 0, ErrClosed
	}

	var mask uint32
	if events&EventRead != 0 {
		mask |= readEvents
	}
	if events&EventWrite != 0 {
		mask |= writeEvents
	}

	op := unix.EPOLL_CTL_MOD
	if _, ok := ep.watched[fd]; !ok {
		op = unix.EPOLL_CTL_ADD
	}
	if err := ep.ctl(op, fd, mask); err != nil {
		return 0, err
	}
	ep.watched[fd] = events
	return fd, nil
}

func (ep *Epoll) Unwatch(id int) error {
	if ep.closed.Load() {
		return ErrClosed
	}
	if _, ok := ep.watched[id]; !ok {
		return ErrNotWatched
	}
	delete(ep.watched, id)

	// The descriptor may already be closed, which removed it from the set.
	err := unix.EpollCtl(ep.fd, unix.EPOLL_CTL_DEL, id, nil)
	if err == unix.EBADF || err == unix.ENOENT {
		return nil
	}
	return err
}

func (ep *Epoll) Wait(timeoutMs int, ready []Ready) ([]Ready, error) {
	if ep.closed.Load() {
		return ready, ErrClosed
	}

	n, err := unix.EpollWait(ep.fd, ep.events, timeoutMs)
	if err != nil {
		if util.IsInterrupted(err) {
			return ready, nil
		}
		return ready, err
	}

	for i := 0; i < n; i++ {
		ev := ep.events[i]
		fd := int(ev.Fd)
		if fd == ep.eventFd {
			ep.drainWake()
			continue
		}

		var event Event
		if ev.Events&readEvents != 0 {
			event |= EventRead
		}
		if ev.Events&writeEvents != 0 {
			event |= EventWrite
		}
		if ev.Events&unix.EPOLLERR != 0 {
			event |= EventErr
		}
		if ev.Events&unix.EPOLLHUP != 0 {
			event |= EventHup
		}
		ready = append(ready, Ready{Fd: fd, Events: event})
	}

	if n == len(ep.events) {
		ep.events = make([]unix.EpollEvent, int(float64(n)*1.5))
	}
	return ready, nil
}

func (ep *Epoll) Trigger() error {
	if ep.closed.Load() {
		return ErrClosed
	}
	_, err := unix.Write(ep.eventFd, wakeWriteBytes)
	if err == unix.EAGAIN {
		// counter saturated, a wake is already pending
		return nil
	}
	return err
}

func (ep *Epoll) Close() error {
	if ep.closed.Swap(true) {
		return ErrClosed
	}
	_ = unix.Close(ep.eventFd)
	return unix.Close(ep.fd)
}

func (ep *Epoll) drainWake() {
	_, _ = unix.Read(ep.eventFd, ep.wakeBuf)
}

func (ep *Epoll) ctl(op int, fd int, events uint32) error {
	ev := &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(ep.fd, op, fd, ev)
}
