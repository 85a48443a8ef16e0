package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/testutil/fakeapi"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func newTestChannel(t *testing.T, srv *fakeapi.Server) *Channel {
	t.Helper()
	url, err := URLFromBase(srv.URL)
	require.NoError(t, err)
	c := New(Options{
		URL:               url,
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
		ReconnectDelayMax: 50 * time.Millisecond,
	})
	t.Cleanup(c.Close)
	return c
}

func openAndWait(t *testing.T, c *Channel, userID string) {
	t.Helper()
	c.Open(context.Background(), userID)
	require.Eventually(t, func() bool { return c.State() == StateOpen }, waitFor, tick)
}

// recorder collects handler invocations from the read goroutine.
type recorder struct {
	mu     sync.Mutex
	events []json.RawMessage
}

func (r *recorder) handle(data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) last() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestURLFromBase(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:5000", "ws://localhost:5000/ws"},
		{"https://tasks.example.com/", "wss://tasks.example.com/ws"},
		{"https://example.com/app", "wss://example.com/app/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := URLFromBase(tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := URLFromBase("ftp://example.com")
	assert.Error(t, err)
}

func TestOpen_AnnouncesUser(t *testing.T) {
	srv := fakeapi.New(t)
	c := newTestChannel(t, srv)

	assert.Equal(t, StateClosed, c.State())
	openAndWait(t, c, "u1")

	require.Eventually(t, func() bool { return len(srv.Joins()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"u1"}, srv.Joins())
}

func TestOpen_Idempotent(t *testing.T) {
	srv := fakeapi.New(t)
	c := newTestChannel(t, srv)
	openAndWait(t, c, "u1")

	c.Open(context.Background(), "u2")

	require.Eventually(t, func() bool { return len(srv.Joins()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"u1", "u2"}, srv.Joins())
	assert.Equal(t, 1, srv.PeerCount(), "a second transport must not be created")
	assert.Equal(t, "u2", c.UserID())
}

func TestReconnect_ReannouncesAndKeepsHandlers(t *testing.T) {
	srv := fakeapi.New(t)
	c := newTestChannel(t, srv)

	rec := &recorder{}
	c.On(EventTaskDeleted, rec.handle)

	var connects, disconnects int
	var mu sync.Mutex
	c.On(EventConnect, func(json.RawMessage) { mu.Lock(); connects++; mu.Unlock() })
	c.On(EventDisconnect, func(json.RawMessage) { mu.Lock(); disconnects++; mu.Unlock() })

	openAndWait(t, c, "u1")
	require.Eventually(t, func() bool { return len(srv.Joins()) == 1 }, waitFor, tick)

	srv.DropPeers()
	require.Eventually(t, func() bool { return len(srv.Joins()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"u1", "u1"}, srv.Joins())
	require.Eventually(t, func() bool { return c.State() == StateOpen && srv.PeerCount() == 1 }, waitFor, tick)

	srv.Broadcast(EventTaskDeleted, "t1")
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)

	id, err := DecodeTaskID(rec.last())
	require.NoError(t, err)
	assert.Equal(t, "t1", id)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 1, disconnects)
}

func TestGivesUpAfterAttempts(t *testing.T) {
	srv := fakeapi.New(t)
	srv.RejectSockets(true)
	c := newTestChannel(t, srv)

	var mu sync.Mutex
	var states []State
	c.OnState(func(s State) { mu.Lock(); states = append(states, s); mu.Unlock() })

	c.Open(context.Background(), "u1")
	require.Eventually(t, func() bool { return c.State() == StateClosed }, waitFor, tick)

	mu.Lock()
	assert.Equal(t, []State{StateConnecting, StateClosed}, states)
	mu.Unlock()

	// Reopening after giving up starts a fresh supervisor.
	srv.RejectSockets(false)
	openAndWait(t, c, "u1")
}

func TestEmit_DroppedWhileClosed(t *testing.T) {
	srv := fakeapi.New(t)
	c := newTestChannel(t, srv)

	c.EmitTaskDeleted("t1")

	openAndWait(t, c, "u1")
	c.EmitTaskDeleted("t2")

	require.Eventually(t, func() bool { return len(srv.FramesNamed(EventTaskDeleted)) == 1 }, waitFor, tick)
	var id string
	require.NoError(t, json.Unmarshal(srv.FramesNamed(EventTaskDeleted)[0].Data, &id))
	assert.Equal(t, "t2", id, "events sent while closed are not buffered")
}

func TestEmit_FansOutToPeers(t *testing.T) {
	srv := fakeapi.New(t)
	alice := newTestChannel(t, srv)
	bob := newTestChannel(t, srv)

	got := &recorder{}
	bob.On(EventTaskUpdated, got.handle)
	echo := &recorder{}
	alice.On(EventTaskUpdated, echo.handle)

	openAndWait(t, alice, "alice")
	openAndWait(t, bob, "bob")
	require.Eventually(t, func() bool { return srv.PeerCount() == 2 }, waitFor, tick)

	alice.EmitTaskUpdated(model.Task{ID: "t1", Title: "renamed", Status: model.StatusReview})
	require.Eventually(t, func() bool { return got.count() == 1 }, waitFor, tick)

	task, err := DecodeTask(got.last())
	require.NoError(t, err)
	assert.Equal(t, "renamed", task.Title)
	assert.Equal(t, model.StatusReview, task.Status)
	assert.Zero(t, echo.count(), "the sender does not receive its own broadcast")
}

func TestEmitTaskAssigned_NotifiesAssigneeOnly(t *testing.T) {
	srv := fakeapi.New(t)
	alice := newTestChannel(t, srv)
	bob := newTestChannel(t, srv)
	carol := newTestChannel(t, srv)

	bobNotes := &recorder{}
	bob.On(EventAssignmentNotification, bobNotes.handle)
	carolNotes := &recorder{}
	carol.On(EventAssignmentNotification, carolNotes.handle)

	openAndWait(t, alice, "alice")
	openAndWait(t, bob, "bob")
	openAndWait(t, carol, "carol")
	require.Eventually(t, func() bool { return len(srv.Joins()) == 3 }, waitFor, tick)

	alice.EmitTaskAssigned(Assignment{AssignedToID: "bob", TaskTitle: "Ship it", TaskID: "t9"})
	require.Eventually(t, func() bool { return bobNotes.count() == 1 }, waitFor, tick)

	var notice AssignmentNotice
	require.NoError(t, json.Unmarshal(bobNotes.last(), &notice))
	assert.Equal(t, "t9", notice.TaskID)
	assert.Contains(t, notice.Text(), "Ship it")
	assert.Zero(t, carolNotes.count())
}

func TestSubscriptionClose(t *testing.T) {
	srv := fakeapi.New(t)
	c := newTestChannel(t, srv)

	first := &recorder{}
	second := &recorder{}
	sub := c.On(EventTaskCreated, first.handle)
	c.On(EventTaskCreated, second.handle)

	openAndWait(t, c, "u1")
	require.Eventually(t, func() bool { return srv.PeerCount() == 1 }, waitFor, tick)

	sub.Close()
	sub.Close()

	srv.Broadcast(EventTaskCreated, model.Task{ID: "t1", Title: "x"})
	require.Eventually(t, func() bool { return second.count() == 1 }, waitFor, tick)
	assert.Zero(t, first.count())
}

func TestClose_StopsReconnecting(t *testing.T) {
	srv := fakeapi.New(t)
	c := newTestChannel(t, srv)
	openAndWait(t, c, "u1")

	c.Close()
	assert.Equal(t, StateClosed, c.State())
	require.Eventually(t, func() bool { return srv.PeerCount() == 0 }, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"u1"}, srv.Joins())
	c.Close()
}

func TestHeaderEvaluatedPerDial(t *testing.T) {
	srv := fakeapi.New(t)
	url, err := URLFromBase(srv.URL)
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	c := New(Options{
		URL:            url,
		ReconnectDelay: 10 * time.Millisecond,
		Header: func() http.Header {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return http.Header{"Authorization": []string{"Bearer t"}}
		},
	})
	t.Cleanup(c.Close)

	openAndWait(t, c, "u1")
	srv.DropPeers()
	require.Eventually(t, func() bool { return len(srv.Joins()) == 2 }, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 2)

	req, ok := srv.LastRequest(http.MethodGet, "/ws")
	if ok {
		assert.Equal(t, "Bearer t", req.Authorization)
	}
}

func TestDecodeTaskID_Shapes(t *testing.T) {
	id, err := DecodeTaskID(json.RawMessage(`"abc"`))
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	id, err = DecodeTaskID(json.RawMessage(`{"_id":"def"}`))
	require.NoError(t, err)
	assert.Equal(t, "def", id)

	id, err = DecodeTaskID(json.RawMessage(`{"id":"ghi"}`))
	require.NoError(t, err)
	assert.Equal(t, "ghi", id)

	_, err = DecodeTaskID(json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestAssignmentNoticeText(t *testing.T) {
	assert.Equal(t, "hello", AssignmentNotice{Message: "hello"}.Text())
	assert.Equal(t, "You have been assigned: X", AssignmentNotice{TaskTitle: "X", Message: "hello"}.Text())
	assert.Equal(t, "You have been assigned a task", AssignmentNotice{}.Text())
}

func TestFinish_ClosedIsVisibleWithCancelCleared(t *testing.T) {
	srv := fakeapi.New(t)
	c := newTestChannel(t, srv)

	var mu sync.Mutex
	var states []State
	c.OnState(func(s State) { mu.Lock(); states = append(states, s); mu.Unlock() })

	c.mu.Lock()
	c.state = StateConnecting
	c.cancel = func() {}
	c.mu.Unlock()

	c.finish()

	c.mu.Lock()
	assert.Equal(t, StateClosed, c.state)
	assert.Nil(t, c.cancel)
	c.mu.Unlock()
	mu.Lock()
	assert.Equal(t, []State{StateClosed}, states)
	mu.Unlock()

	// The next Open dials instead of treating the channel as live.
	openAndWait(t, c, "u1")
	assert.Equal(t, []string{"u1"}, srv.Joins())
}

func TestDecodeTask_AcceptsPlainID(t *testing.T) {
	task, err := DecodeTask(json.RawMessage(`{"id":"abc","title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", task.ID)
}
