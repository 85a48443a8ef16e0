package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/channel"
	"github.com/nhle/taskboard/internal/session"
	"github.com/nhle/taskboard/internal/taskview"
)

type fakeTarget struct {
	mu      gosync.Mutex
	state   channel.State
	watcher func(channel.State)
	reloads int
	count   int
	err     error
}

func (f *fakeTarget) Connectivity() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTarget) OnConnectivity(fn func(channel.State)) *channel.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watcher = fn
	return nil
}

func (f *fakeTarget) Reload(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return f.count, f.err
}

func (f *fakeTarget) set(state channel.State) {
	f.mu.Lock()
	f.state = state
	w := f.watcher
	f.mu.Unlock()
	if w != nil {
		w(state)
	}
}

func (f *fakeTarget) reloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

func next(t *testing.T, p *Poller, timeout time.Duration) (RefreshResultMsg, bool) {
	t.Helper()
	ch := make(chan RefreshResultMsg, 1)
	go func() {
		if msg, ok := p.WaitForNextResult()().(RefreshResultMsg); ok {
			ch <- msg
		}
	}()
	select {
	case msg := <-ch:
		return msg, true
	case <-time.After(timeout):
		return RefreshResultMsg{}, false
	}
}

func TestPoller_ReloadsWhileDegraded(t *testing.T) {
	target := &fakeTarget{state: channel.StateConnecting, count: 4}
	p := New(target, 20*time.Millisecond)
	require.NotNil(t, p.Start())
	defer p.Stop()

	msg, ok := next(t, p, time.Second)
	require.True(t, ok)
	assert.Equal(t, ReasonDegraded, msg.Reason)
	assert.Equal(t, 4, msg.Count)
	assert.NoError(t, msg.Error)
}

func TestPoller_QuietWhileOpen(t *testing.T) {
	target := &fakeTarget{state: channel.StateOpen}
	p := New(target, 10*time.Millisecond)
	p.Start()
	defer p.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, target.reloadCount())
}

func TestPoller_CatchUpAfterReconnect(t *testing.T) {
	target := &fakeTarget{state: channel.StateOpen, count: 2}
	p := New(target, time.Hour)
	p.Start()
	defer p.Stop()

	target.set(channel.StateConnecting)
	target.set(channel.StateOpen)

	msg, ok := next(t, p, time.Second)
	require.True(t, ok)
	assert.Equal(t, ReasonReconnected, msg.Reason)

	// A second Open without a loss in between does not reload again.
	target.set(channel.StateOpen)
	_, ok = next(t, p, 100*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, 1, target.reloadCount())
}

func TestPoller_FirstOpenIsNotAReconnect(t *testing.T) {
	target := &fakeTarget{state: channel.StateClosed}
	p := New(target, time.Hour)
	p.Start()
	defer p.Stop()

	target.set(channel.StateConnecting)
	target.set(channel.StateOpen)

	_, ok := next(t, p, 100*time.Millisecond)
	assert.False(t, ok)
}

func TestPoller_ManualRefreshReportsErrors(t *testing.T) {
	target := &fakeTarget{state: channel.StateOpen, err: errors.New("boom")}
	p := New(target, time.Hour)
	p.Start()
	defer p.Stop()

	assert.Nil(t, p.Refresh())
	msg, ok := next(t, p, time.Second)
	require.True(t, ok)
	assert.Equal(t, ReasonManual, msg.Reason)
	assert.EqualError(t, msg.Error, "boom")
}

func TestPoller_SignedOutIsSilent(t *testing.T) {
	target := &fakeTarget{state: channel.StateClosed, err: session.ErrNotSignedIn}
	p := New(target, 10*time.Millisecond)
	p.Start()
	defer p.Stop()

	_, ok := next(t, p, 100*time.Millisecond)
	assert.False(t, ok)
	assert.Positive(t, target.reloadCount())
}

func TestPoller_StartStop(t *testing.T) {
	target := &fakeTarget{state: channel.StateOpen}
	p := New(target, 0)
	assert.Equal(t, DefaultInterval, p.interval)

	require.NotNil(t, p.Start())
	assert.Nil(t, p.Start())
	p.Stop()
	p.Stop()
}

func TestPoller_RestartAfterStop(t *testing.T) {
	target := &fakeTarget{state: channel.StateConnecting, count: 2}
	p := New(target, 20*time.Millisecond)

	require.NotNil(t, p.Start())
	p.Stop()

	require.NotNil(t, p.Start())
	defer p.Stop()

	msg, ok := next(t, p, time.Second)
	require.True(t, ok)
	assert.Equal(t, ReasonDegraded, msg.Reason)
}

func TestPoller_SupersededReloadIsSilent(t *testing.T) {
	target := &fakeTarget{state: channel.StateOpen, err: taskview.ErrSuperseded}
	p := New(target, time.Hour)
	p.Start()
	defer p.Stop()

	p.Refresh()
	_, ok := next(t, p, 100*time.Millisecond)
	assert.False(t, ok)
	require.Eventually(t, func() bool { return target.reloadCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "degraded", ReasonDegraded.String())
	assert.Equal(t, "reconnected", ReasonReconnected.String())
	assert.Equal(t, "manual", ReasonManual.String())
	assert.Equal(t, "unknown", Reason(42).String())
}
