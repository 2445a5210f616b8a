package evreact

import (
	"fmt"
	"reflect"

	"github.com/dreamans/evreact/poller"
	"github.com/dreamans/evreact/util"
)

// StreamListener is called with the stream value passed at registration.
type StreamListener func(stream interface{})

type streamEntry struct {
	stream   interface{}
	listener StreamListener
}

// registration is the bookkeeping for one descriptor. Either direction may be
// empty, never both.
type registration struct {
	fd    int
	id    int
	read  *streamEntry
	write *streamEntry
}

func (r *registration) events() poller.Event {
	var ev poller.Event
	if r.read != nil {
		ev |= poller.EventRead
	}
	if r.write != nil {
		ev |= poller.EventWrite
	}
	return ev
}

// holds reports whether either direction was registered with stream.
func (r *registration) holds(stream interface{}) bool {
	return r.read.holds(stream) || r.write.holds(stream)
}

func (e *streamEntry) holds(stream interface{}) bool {
	return e != nil && isComparable(stream) && isComparable(e.stream) && e.stream == stream
}

func isComparable(v interface{}) bool {
	return v != nil && reflect.ValueOf(v).Comparable()
}

// AddReadStream calls listener whenever stream is readable. A second call for
// the same descriptor replaces the listener.
func (l *EventLoop) AddReadStream(stream interface{}, listener StreamListener) error {
	return l.addStream(stream, listener, poller.EventRead)
}

// AddWriteStream calls listener whenever stream is writable. A second call for
// the same descriptor replaces the listener.
func (l *EventLoop) AddWriteStream(stream interface{}, listener StreamListener) error {
	return l.addStream(stream, listener, poller.EventWrite)
}

// RemoveReadStream stops read notifications for stream. Unknown streams are ignored.
func (l *EventLoop) RemoveReadStream(stream interface{}) {
	l.removeStream(stream, poller.EventRead)
}

// RemoveWriteStream stops write notifications for stream. Unknown streams are ignored.
func (l *EventLoop) RemoveWriteStream(stream interface{}) {
	l.removeStream(stream, poller.EventWrite)
}

func (l *EventLoop) addStream(stream interface{}, listener StreamListener, dir poller.Event) error {
	if l.closed {
		return ErrLoopClosed
	}
	fd, err := util.Fd(stream)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStream, err)
	}

	reg, exists := l.streams[fd]
	if !exists {
		reg = &registration{fd: fd}
	}
	// a different stream value on a known descriptor may be a reused fd
	// number whose kernel registration went away with the old descriptor
	rewatch := exists && !reg.holds(stream)

	entry := &streamEntry{stream: stream, listener: listener}
	prevRead, prevWrite := reg.read, reg.write
	if dir == poller.EventRead {
		reg.read = entry
	} else {
		reg.write = entry
	}

	fresh := (dir == poller.EventRead && prevRead == nil) || (dir == poller.EventWrite && prevWrite == nil)
	if rewatch {
		if err := l.poller.Unwatch(reg.id); err != nil {
			l.logger.Debugf("[poller.Unwatch]: fd %d: %s", fd, err.Error())
		}
	}
	if rewatch || fresh {
		id, err := l.poller.Watch(fd, reg.events())
		if err != nil {
			if rewatch {
				delete(l.streams, fd)
			} else {
				reg.read, reg.write = prevRead, prevWrite
			}
			return fmt.Errorf("watch fd %d: %w", fd, err)
		}
		reg.id = id
	}
	l.streams[fd] = reg

	l.logger.Debugf("[AddStream]: fd %d %s", fd, dir)
	return nil
}

func (l *EventLoop) removeStream(stream interface{}, dir poller.Event) {
	reg, ok := l.lookupStream(stream, dir)
	if !ok {
		return
	}
	fd := reg.fd

	if dir == poller.EventRead {
		if reg.read == nil {
			return
		}
		reg.read = nil
	} else {
		if reg.write == nil {
			return
		}
		reg.write = nil
	}

	if reg.read == nil && reg.write == nil {
		delete(l.streams, fd)
		if err := l.poller.Unwatch(reg.id); err != nil {
			l.logger.Errorf("[poller.Unwatch]: fd %d: %s", fd, err.Error())
		}
		l.logger.Debugf("[RemoveStream]: fd %d released", fd)
		return
	}

	if _, err := l.poller.Watch(fd, reg.events()); err != nil {
		l.logger.Errorf("[poller.Watch]: fd %d: %s", fd, err.Error())
	}
	l.logger.Debugf("[RemoveStream]: fd %d %s", fd, dir)
}

// lookupStream finds the registration for stream. A stream whose descriptor
// can no longer be resolved, such as a closed file, is matched by the value
// registered for dir.
func (l *EventLoop) lookupStream(stream interface{}, dir poller.Event) (*registration, bool) {
	if fd, err := util.Fd(stream); err == nil {
		reg, ok := l.streams[fd]
		return reg, ok
	}
	for _, reg := range l.streams {
		e := reg.write
		if dir == poller.EventRead {
			e = reg.read
		}
		if e.holds(stream) {
			return reg, true
		}
	}
	return nil, false
}

// dispatchStreams runs listeners for a ready snapshot. Registrations are
// looked up again before every call, so anything removed by an earlier
// listener in the same pass is skipped.
func (l *EventLoop) dispatchStreams(ready []poller.Ready) {
	for _, r := range ready {
		ev := r.Events
		if ev&(poller.EventErr|poller.EventHup) != 0 {
			// deliver failures to whoever is listening so they observe EOF or the error
			ev |= poller.EventRead | poller.EventWrite
		}

		if ev&poller.EventRead != 0 {
			if reg, ok := l.streams[r.Fd]; ok && reg.read != nil && reg.read.listener != nil {
				reg.read.listener(reg.read.stream)
			}
		}
		if ev&poller.EventWrite != 0 {
			if reg, ok := l.streams[r.Fd]; ok && reg.write != nil && reg.write.listener != nil {
				reg.write.listener(reg.write.stream)
			}
		}
	}
}
