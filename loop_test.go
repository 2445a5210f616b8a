package evreact

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamans/evreact/evlog"
	"github.com/dreamans/evreact/poller"
)

func TestFutureTickFIFOWithOneIterationLag(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	var order []string
	iteration := func() int { return len(h.poller.timeouts) }

	l.FutureTick(func() {
		order = append(order, "a")
		assert.Equal(t, 1, iteration())
		l.FutureTick(func() {
			order = append(order, "c")
			assert.Equal(t, 2, iteration())
		})
	})
	l.FutureTick(func() {
		order = append(order, "b")
		assert.Equal(t, 1, iteration())
	})

	require.NoError(t, l.Run())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []int{0, 0}, h.poller.timeouts)
}

func TestFutureTickSelfRescheduleDoesNotStarve(t *testing.T) {
	h := newHarness(t)
	l := h.loop
	h.poller.onWait = func(int) { h.clock.advance(time.Millisecond) }

	ticks := 0
	var again func()
	again = func() {
		ticks++
		l.FutureTick(again)
	}
	l.FutureTick(again)

	fired := false
	_, err := l.AddTimer(0.005, func() {
		fired = true
		l.Stop()
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.True(t, fired)
	assert.Equal(t, 5, ticks)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, h.poller.timeouts)
}

func TestStopFromCallbackFinishesIteration(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	s := &fdStream{fd: 5}
	var order []string
	require.NoError(t, l.AddReadStream(s, func(interface{}) {
		order = append(order, "read")
		l.Stop()
		assert.Equal(t, StateStopped, l.State())
	}))
	_, err := l.AddTimer(0, func() { order = append(order, "timer") })
	require.NoError(t, err)
	l.FutureTick(func() { order = append(order, "tick") })
	_, err = l.AddTimer(0.001, func() { order = append(order, "next iteration") })
	require.NoError(t, err)

	h.poller.push(poller.Ready{Fd: 5, Events: poller.EventRead})
	require.NoError(t, l.Run())

	assert.Equal(t, []string{"read", "timer", "tick"}, order)
	assert.Len(t, h.poller.timeouts, 1)
	assert.Equal(t, 1, h.poller.triggers)
	assert.Equal(t, StateStopped, l.State())
}

func TestRunIsRestartable(t *testing.T) {
	h := newHarness(t)
	l := h.loop
	assert.Equal(t, StateIdle, l.State())

	runs := 0
	l.FutureTick(func() {
		runs++
		l.Stop()
	})
	require.NoError(t, l.Run())
	assert.Equal(t, StateStopped, l.State())

	l.FutureTick(func() { runs++ })
	require.NoError(t, l.Run())
	assert.Equal(t, 2, runs)
}

func TestRunReentrant(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	var inner error
	l.FutureTick(func() {
		inner = l.Run()
	})
	require.NoError(t, l.Run())
	assert.True(t, errors.Is(inner, ErrLoopRunning))
}

func TestRunWithNothingToDo(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.loop.Run())
	assert.Empty(t, h.poller.timeouts)
	assert.Equal(t, StateStopped, h.loop.State())
}

func TestStopWhenNotRunning(t *testing.T) {
	h := newHarness(t)

	h.loop.Stop()
	h.loop.Exit()
	assert.Equal(t, StateIdle, h.loop.State())
	assert.Equal(t, 0, h.poller.triggers)
}

func TestExitWhileRunning(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	after := false
	l.FutureTick(func() {
		l.Exit()
		l.FutureTick(func() { after = true })
	})
	require.NoError(t, l.Run())
	assert.False(t, after)
	assert.Equal(t, 1, l.deferred.Length())
}

func TestPollErrorReturned(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	require.NoError(t, l.AddReadStream(&fdStream{fd: 3}, func(interface{}) {}))
	err := l.Run()
	assert.True(t, errors.Is(err, errWouldBlock))
	assert.Equal(t, []int{-1}, h.poller.timeouts)
	assert.Equal(t, StateStopped, l.State())
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	require.NoError(t, l.Close())
	assert.True(t, h.poller.closed)
	assert.True(t, h.watcher.closed)

	assert.True(t, errors.Is(l.Close(), ErrLoopClosed))
	assert.True(t, errors.Is(l.Run(), ErrLoopClosed))
	assert.True(t, errors.Is(l.AddReadStream(3, func(interface{}) {}), ErrLoopClosed))
	assert.True(t, errors.Is(l.AddSignal(1, func(int) {}), ErrLoopClosed))
}

func TestLoopStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "LoopState(7)", LoopState(7).String())
}

func TestRunLogsTransitions(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	clock := &fakeClock{}
	l, err := New(NewOptions().
		SetPoller(newFakePoller(clock)).
		SetSignalWatcher(&fakeWatcher{watched: map[int]int{}}).
		SetClock(clock.now).
		SetLogger(evlog.FromLogrus(base)))
	require.NoError(t, err)

	l.FutureTick(func() {})
	require.NoError(t, l.Run())

	var msgs []string
	for _, e := range hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"[Run]: start", "[Run]: stop"}, msgs)
}

func TestOptionsDefaults(t *testing.T) {
	o := (*Options)(nil).withDefaults()
	assert.NotNil(t, o.Logger)
	assert.NotNil(t, o.Clock)
	assert.Equal(t, poller.DefaultMaxEvents, o.MaxEvents)

	o = NewOptions().SetMaxEvents(16).withDefaults()
	assert.Equal(t, 16, o.MaxEvents)
}
