package evreact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSignalWatchesOnce(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	var got []string
	require.NoError(t, l.AddSignal(10, func(int) { got = append(got, "first") }))
	require.NoError(t, l.AddSignal(10, func(sig int) {
		got = append(got, "second")
		assert.Equal(t, 10, sig)
	}))
	assert.Equal(t, 1, h.watcher.watched[10])
	assert.Equal(t, 1, l.signals.Len())

	l.DispatchSignal(10)
	l.DispatchSignal(12)
	assert.Equal(t, []string{"second"}, got)
}

func TestRemoveSignal(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	l.RemoveSignal(10, nil)
	assert.Empty(t, h.watcher.unwatched)

	require.NoError(t, l.AddSignal(10, func(int) { t.Fatal("removed listener ran") }))
	l.RemoveSignal(10, func(int) {})
	assert.Equal(t, []int{10}, h.watcher.unwatched)
	assert.Equal(t, 0, l.signals.Len())

	l.RemoveSignal(10, nil)
	assert.Equal(t, []int{10}, h.watcher.unwatched)
	l.DispatchSignal(10)
}

func TestSignalKeepsLoopAlive(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	raised := false
	h.poller.onWait = func(int) {
		if !raised {
			raised = true
			l.notifySignal(15)
		}
	}

	var got []int
	require.NoError(t, l.AddSignal(15, func(sig int) {
		got = append(got, sig)
		l.RemoveSignal(sig, nil)
	}))

	require.NoError(t, l.Run())
	assert.Equal(t, []int{15}, got)
	assert.Equal(t, []int{-1}, h.poller.timeouts)
}

func TestPendingSignalsBeforeTimers(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	raised := false
	h.poller.onWait = func(int) {
		if !raised {
			raised = true
			l.notifySignal(2)
			l.notifySignal(2)
		}
	}

	var order []string
	require.NoError(t, l.AddSignal(2, func(int) { order = append(order, "signal") }))
	_, err := l.AddTimer(0, func() {
		order = append(order, "timer")
		l.RemoveSignal(2, nil)
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.Equal(t, []string{"signal", "signal", "timer"}, order)
	assert.Equal(t, 2, h.poller.triggers)
}

func TestPendingSignalWithoutListener(t *testing.T) {
	h := newHarness(t)
	l := h.loop

	l.notifySignal(3)
	l.dispatchPendingSignals()
	assert.Empty(t, l.pending.sigs)
}
