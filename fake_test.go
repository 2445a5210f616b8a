package evreact

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamans/evreact/evlog"
	"github.com/dreamans/evreact/poller"
)

var errWouldBlock = errors.New("fake poller: wait would block forever")

// fakePoller replays scripted ready batches and advances a fakeClock by the
// requested timeout, so timer behaviour is deterministic.
type fakePoller struct {
	clock    *fakeClock
	watched  map[int]poller.Event
	unwatch  []int
	batches  [][]poller.Ready
	timeouts []int
	triggers int
	closed   bool
	onWait   func(timeout int)
}

func newFakePoller(clock *fakeClock) *fakePoller {
	return &fakePoller{clock: clock, watched: make(map[int]poller.Event)}
}

func (p *fakePoller) Watch(fd int, events poller.Event) (int, error) {
	p.watched[fd] = events
	return fd + 1000, nil
}

func (p *fakePoller) Unwatch(id int) error {
	fd := id - 1000
	if _, ok := p.watched[fd]; !ok {
		return poller.ErrNotWatched
	}
	delete(p.watched, fd)
	p.unwatch = append(p.unwatch, fd)
	return nil
}

func (p *fakePoller) Wait(timeout int, ready []poller.Ready) ([]poller.Ready, error) {
	p.timeouts = append(p.timeouts, timeout)
	if p.onWait != nil {
		p.onWait(timeout)
	}
	if len(p.batches) > 0 {
		ready = append(ready, p.batches[0]...)
		p.batches = p.batches[1:]
		return ready, nil
	}
	if timeout < 0 {
		if p.triggers > 0 {
			p.triggers = 0
			return ready, nil
		}
		return ready, errWouldBlock
	}
	p.clock.advance(time.Duration(timeout) * time.Millisecond)
	return ready, nil
}

func (p *fakePoller) Trigger() error {
	p.triggers++
	return nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

func (p *fakePoller) push(ready ...poller.Ready) {
	p.batches = append(p.batches, ready)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeWatcher struct {
	watched   map[int]int
	unwatched []int
	closed    bool
}

func (w *fakeWatcher) Watch(sig int) error {
	w.watched[sig]++
	return nil
}

func (w *fakeWatcher) Unwatch(sig int) error {
	w.unwatched = append(w.unwatched, sig)
	return nil
}

func (w *fakeWatcher) Close() error {
	w.closed = true
	return nil
}

type fdStream struct {
	fd   int
	name string
}

func (s *fdStream) Fd() uintptr { return uintptr(s.fd) }

type harness struct {
	loop    *EventLoop
	poller  *fakePoller
	clock   *fakeClock
	watcher *fakeWatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	p := newFakePoller(clock)
	w := &fakeWatcher{watched: make(map[int]int)}
	l, err := New(NewOptions().
		SetPoller(p).
		SetSignalWatcher(w).
		SetClock(clock.now).
		SetLogger(evlog.NewNop()))
	require.NoError(t, err)
	return &harness{loop: l, poller: p, clock: clock, watcher: w}
}
