// Package poller wraps the OS readiness primitive used by the event loop.
//
// A Poller never invokes callbacks itself. Wait returns the ready descriptors
// as a batch, so the caller sees one consistent snapshot per call no matter
// what its own callbacks register or remove afterwards.
package poller

import "errors"

type Event uint32

const (
	EventRead Event = 1 << iota
	EventWrite
	EventErr
	EventHup
)

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	s := ""
	for _, f := range [...]struct {
		ev   Event
		name string
	}{
		{EventRead, "read"},
		{EventWrite, "write"},
		{EventErr, "err"},
		{EventHup, "hup"},
	} {
		if e&f.ev != 0 {
			if s != "" {
				s += "|"
			}
			s += f.name
		}
	}
	return s
}

// Ready is one descriptor reported by Wait.
type Ready struct {
	Fd     int
	Events Event
}

const (
	DefaultMaxEvents = 128
)

var (
	ErrClosed      = errors.New("poller is not running")
	ErrUnsupported = errors.New("poller: no readiness primitive on this platform")
	ErrNotWatched  = errors.New("poller: descriptor not watched")
)

type Poller interface {
	// Watch sets the full interest mask for fd, starting to watch it if
	// needed, and returns the registration id to pass to Unwatch.
	Watch(fd int, events Event) (int, error)
	Unwatch(id int) error
	// Wait blocks for up to timeoutMs (forever if negative) and appends the
	// ready descriptors to ready. An interrupted wait returns an empty batch.
	Wait(timeoutMs int, ready []Ready) ([]Ready, error)
	// Trigger makes a blocked or the next Wait return early.
	Trigger() error
	Close() error
}

func normalizeMaxEvents(n int) int {
	if n <= 0 {
		return DefaultMaxEvents
	}
	return n
}
