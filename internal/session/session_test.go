package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/channel"
	"github.com/nhle/taskboard/internal/credential"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/store"
	"github.com/nhle/taskboard/internal/taskview"
	"github.com/nhle/taskboard/internal/testutil"
	"github.com/nhle/taskboard/internal/testutil/fakeapi"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type harness struct {
	sess   *Session
	client *api.Client
	ch     *channel.Channel
	tokens *credential.Keyring
}

type harnessOpts struct {
	echo    bool
	cache   store.Store
	timeout time.Duration
}

func newHarness(t *testing.T, srv *fakeapi.Server, o harnessOpts) *harness {
	t.Helper()

	tokens := credential.NewMemory()
	client, err := api.NewClient(api.Options{BaseURL: srv.URL, Tokens: tokens, Timeout: o.timeout})
	require.NoError(t, err)

	url, err := channel.URLFromBase(srv.URL)
	require.NoError(t, err)
	ch := channel.New(channel.Options{
		URL:               url,
		ReconnectAttempts: 2,
		ReconnectDelay:    20 * time.Millisecond,
		ReconnectDelayMax: 40 * time.Millisecond,
		Dialer:            &websocket.Dialer{Jar: client.Jar(), HandshakeTimeout: time.Second},
		Header:            client.AuthHeader,
	})

	var viewOpts []taskview.Option
	if o.cache != nil {
		viewOpts = append(viewOpts, taskview.WithCache(o.cache))
	}
	sess := New(Options{
		Client:     client,
		Channel:    ch,
		View:       taskview.New(client, viewOpts...),
		Cache:      o.cache,
		EchoWrites: o.echo,
	})
	t.Cleanup(sess.Close)

	return &harness{sess: sess, client: client, ch: ch, tokens: tokens}
}

func (h *harness) login(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, h.sess.Login(context.Background(), email, "secret1"))
	require.Eventually(t, func() bool { return h.sess.Connectivity() == channel.StateOpen }, waitFor, tick)
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	require.NoError(t, h.sess.LoadTasks(context.Background(), taskview.Query{Filter: taskview.FilterAll}))
}

func countID(tasks []model.Task, id string) int {
	n := 0
	for _, t := range tasks {
		if t.ID == id {
			n++
		}
	}
	return n
}

func waitJoins(t *testing.T, srv *fakeapi.Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(srv.Joins()) >= n }, waitFor, tick)
}

func TestStart_Anonymous(t *testing.T) {
	srv := fakeapi.New(t)
	h := newHarness(t, srv, harnessOpts{})

	require.NoError(t, h.sess.Start(context.Background()))
	assert.Nil(t, h.sess.User())
	assert.False(t, h.sess.AuthLoading())
	assert.Equal(t, channel.StateClosed, h.sess.Connectivity())
}

func TestStart_ResumesCachedToken(t *testing.T) {
	srv := fakeapi.New(t)
	me := srv.AddUser("Ada", "ada@example.com", "secret1")
	h := newHarness(t, srv, harnessOpts{})
	require.NoError(t, h.tokens.SetToken(srv.Token(me.ID, time.Hour)))

	require.NoError(t, h.sess.Start(context.Background()))
	require.NotNil(t, h.sess.User())
	assert.Equal(t, me.ID, h.sess.UserID())

	waitJoins(t, srv, 1)
	assert.Equal(t, []string{me.ID}, srv.Joins())
}

func TestStart_TransportFailure(t *testing.T) {
	srv := fakeapi.New(t)
	srv.SetDelay(300 * time.Millisecond)
	h := newHarness(t, srv, harnessOpts{timeout: 50 * time.Millisecond})

	err := h.sess.Start(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsTransport(err))
	assert.Nil(t, h.sess.User())
	assert.False(t, h.sess.AuthLoading())
}

func TestLogin_ValidatesBeforeCalling(t *testing.T) {
	srv := fakeapi.New(t)
	h := newHarness(t, srv, harnessOpts{})

	err := h.sess.Login(context.Background(), "not-an-email", "")
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))
	assert.Empty(t, srv.Requests())
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := fakeapi.New(t)
	srv.AddUser("Ada", "ada@example.com", "secret1")
	h := newHarness(t, srv, harnessOpts{})

	err := h.sess.Login(context.Background(), "ada@example.com", "nope")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", api.Message(err))
	assert.Nil(t, h.sess.User())
}

func TestRegister_SignsIn(t *testing.T) {
	srv := fakeapi.New(t)
	h := newHarness(t, srv, harnessOpts{})

	err := h.sess.Register(context.Background(), "bob@example.com", "Bob", "short")
	require.Error(t, err)
	assert.True(t, model.IsValidationError(err))

	require.NoError(t, h.sess.Register(context.Background(), "bob@example.com", "Bob", "hunter22"))
	require.NotNil(t, h.sess.User())
	assert.Equal(t, "Bob", h.sess.User().Name)
	waitJoins(t, srv, 1)
}

func TestCreateTask_PeersSeeItAndAssigneeIsNotified(t *testing.T) {
	srv := fakeapi.New(t)
	srv.AddUser("Ada", "ada@example.com", "secret1")
	bobUser := srv.AddUser("Bob", "bob@example.com", "secret1")

	alice := newHarness(t, srv, harnessOpts{echo: true})
	bob := newHarness(t, srv, harnessOpts{echo: true})
	alice.login(t, "ada@example.com")
	bob.login(t, "bob@example.com")
	waitJoins(t, srv, 2)
	bob.load(t)

	task, err := alice.sess.CreateTask(context.Background(), model.TaskInput{
		Title:        "Ship it",
		AssignedToID: bobUser.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countID(alice.sess.View().Tasks(), task.ID))

	require.Eventually(t, func() bool {
		return countID(bob.sess.View().Tasks(), task.ID) == 1
	}, waitFor, tick)

	require.Eventually(t, func() bool { return len(bob.sess.Toasts().Active()) > 0 }, waitFor, tick)
	var messages []string
	for _, n := range bob.sess.Toasts().Active() {
		messages = append(messages, n.Message)
	}
	assert.Contains(t, messages, "You have been assigned: Ship it")
}

func TestCreateTask_ValidationError(t *testing.T) {
	srv := fakeapi.New(t)
	srv.AddUser("Ada", "ada@example.com", "secret1")
	h := newHarness(t, srv, harnessOpts{echo: true})
	h.login(t, "ada@example.com")

	_, err := h.sess.CreateTask(context.Background(), model.TaskInput{Title: "   "})
	require.Error(t, err)

	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.NotEmpty(t, ve.Field("title"))
	_, posted := srv.LastRequest(http.MethodPost, "/api/tasks")
	assert.False(t, posted)
}

// A create seen both from the direct write and from a broadcast back to
// the sender is inserted twice. This documents the known defect.
func TestCreateTask_DuplicatedWhenBroadcastReachesSender(t *testing.T) {
	srv := fakeapi.New(t, fakeapi.WithBroadcastToSender())
	srv.AddUser("Ada", "ada@example.com", "secret1")
	h := newHarness(t, srv, harnessOpts{echo: true})
	h.login(t, "ada@example.com")
	h.load(t)

	task, err := h.sess.CreateTask(context.Background(), model.TaskInput{Title: "Once"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return countID(h.sess.View().Tasks(), task.ID) == 2
	}, waitFor, tick)
}

func TestEchoDisabled_ReliesOnServerEvents(t *testing.T) {
	srv := fakeapi.New(t, fakeapi.WithServerEvents())
	srv.AddUser("Ada", "ada@example.com", "secret1")
	srv.AddUser("Bob", "bob@example.com", "secret1")

	alice := newHarness(t, srv, harnessOpts{echo: false})
	bob := newHarness(t, srv, harnessOpts{echo: false})
	alice.login(t, "ada@example.com")
	bob.login(t, "bob@example.com")
	waitJoins(t, srv, 2)
	bob.load(t)

	task, err := alice.sess.CreateTask(context.Background(), model.TaskInput{Title: "From server"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return countID(bob.sess.View().Tasks(), task.ID) == 1
	}, waitFor, tick)
	assert.Empty(t, srv.FramesNamed(channel.EventTaskCreated), "client must not emit its own write")
}

func TestUpdateAndDelete_PropagateToPeers(t *testing.T) {
	srv := fakeapi.New(t)
	ada := srv.AddUser("Ada", "ada@example.com", "secret1")
	srv.AddUser("Bob", "bob@example.com", "secret1")
	seeded := srv.SeedTask(model.Task{Title: "Draft", Description: "keep", CreatedBy: &ada})

	alice := newHarness(t, srv, harnessOpts{echo: true})
	bob := newHarness(t, srv, harnessOpts{echo: true})
	alice.login(t, "ada@example.com")
	bob.login(t, "bob@example.com")
	waitJoins(t, srv, 2)
	alice.load(t)
	bob.load(t)

	_, err := alice.sess.UpdateTask(context.Background(), seeded.ID, model.TaskPatch{
		Status: model.StatusPtr(model.StatusInProgress),
	})
	require.NoError(t, err)

	got, ok := alice.sess.View().Find(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusInProgress, got.Status)

	require.Eventually(t, func() bool {
		got, ok := bob.sess.View().Find(seeded.ID)
		return ok && got.Status == model.StatusInProgress
	}, waitFor, tick)
	bobCopy, _ := bob.sess.View().Find(seeded.ID)
	assert.Equal(t, "keep", bobCopy.Description)

	require.NoError(t, alice.sess.DeleteTask(context.Background(), seeded.ID))
	assert.Empty(t, alice.sess.View().Tasks())
	require.Eventually(t, func() bool { return len(bob.sess.View().Tasks()) == 0 }, waitFor, tick)
}

func TestUpdateTask_ClearedFieldsClearEverywhere(t *testing.T) {
	for _, tc := range []struct {
		name string
		echo bool
		opts []fakeapi.Option
	}{
		{name: "client echo", echo: true},
		{name: "server events", echo: false, opts: []fakeapi.Option{fakeapi.WithServerEvents()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeapi.New(t, tc.opts...)
			ada := srv.AddUser("Ada", "ada@example.com", "secret1")
			srv.AddUser("Bob", "bob@example.com", "secret1")
			due := time.Now().Add(-time.Hour)
			seeded := srv.SeedTask(model.Task{
				Title:       "Stale",
				Description: "old",
				DueDate:     &due,
				CreatedBy:   &ada,
				AssignedTo:  &ada,
			})

			alice := newHarness(t, srv, harnessOpts{echo: tc.echo})
			bob := newHarness(t, srv, harnessOpts{echo: tc.echo})
			alice.login(t, "ada@example.com")
			bob.login(t, "bob@example.com")
			waitJoins(t, srv, 2)
			alice.load(t)
			bob.load(t)

			updated, err := alice.sess.UpdateTask(context.Background(), seeded.ID, model.TaskPatch{
				Description:   model.StringPtr(""),
				ClearDueDate:  true,
				ClearAssignee: true,
			})
			require.NoError(t, err)
			require.Empty(t, updated.Description)
			require.Nil(t, updated.DueDate)
			require.Nil(t, updated.AssignedTo)

			got, ok := alice.sess.View().Find(seeded.ID)
			require.True(t, ok)
			assert.Empty(t, got.Description)
			assert.Nil(t, got.DueDate)
			assert.Nil(t, got.AssignedTo)
			assert.False(t, got.IsOverdue(time.Now()))
			assert.Equal(t, "Stale", got.Title)
			require.NotNil(t, got.CreatedBy)
			assert.Equal(t, ada.ID, got.CreatedBy.ID)

			require.Eventually(t, func() bool {
				got, ok := bob.sess.View().Find(seeded.ID)
				return ok && got.Description == "" && got.DueDate == nil && got.AssignedTo == nil
			}, waitFor, tick)
		})
	}
}

func TestUpdateTask_ReassignNotifiesNewAssignee(t *testing.T) {
	srv := fakeapi.New(t)
	ada := srv.AddUser("Ada", "ada@example.com", "secret1")
	bobUser := srv.AddUser("Bob", "bob@example.com", "secret1")
	seeded := srv.SeedTask(model.Task{Title: "Review PR", CreatedBy: &ada, AssignedTo: &ada})

	alice := newHarness(t, srv, harnessOpts{echo: true})
	alice.login(t, "ada@example.com")
	alice.load(t)

	_, err := alice.sess.UpdateTask(context.Background(), seeded.ID, model.TaskPatch{AssignedToID: &bobUser.ID})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(srv.FramesNamed(channel.EventTaskAssigned)) == 1 }, waitFor, tick)

	// Same assignee again is not a reassignment.
	_, err = alice.sess.UpdateTask(context.Background(), seeded.ID, model.TaskPatch{AssignedToID: &bobUser.ID})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(srv.FramesNamed(channel.EventTaskUpdated)) == 2 }, waitFor, tick)
	assert.Len(t, srv.FramesNamed(channel.EventTaskAssigned), 1)
}

func TestUpdateTask_EmptyPatch(t *testing.T) {
	srv := fakeapi.New(t)
	h := newHarness(t, srv, harnessOpts{})

	_, err := h.sess.UpdateTask(context.Background(), "t1", model.TaskPatch{})
	assert.ErrorIs(t, err, ErrEmptyPatch)
}

func TestDeleteTask_FailureKeepsEntry(t *testing.T) {
	srv := fakeapi.New(t)
	ada := srv.AddUser("Ada", "ada@example.com", "secret1")
	seeded := srv.SeedTask(model.Task{Title: "Keep", CreatedBy: &ada})

	h := newHarness(t, srv, harnessOpts{echo: true})
	h.login(t, "ada@example.com")
	h.load(t)

	srv.FailNext(http.MethodDelete, "/api/tasks/"+seeded.ID, http.StatusInternalServerError, "db down")
	err := h.sess.DeleteTask(context.Background(), seeded.ID)
	require.Error(t, err)
	assert.Equal(t, "db down", api.Message(err))
	assert.Len(t, h.sess.View().Tasks(), 1)
}

func TestLoadTasks_UnauthorizedSignsOut(t *testing.T) {
	srv := fakeapi.New(t)
	srv.AddUser("Ada", "ada@example.com", "secret1")
	h := newHarness(t, srv, harnessOpts{})
	h.login(t, "ada@example.com")

	srv.FailNext(http.MethodGet, "/api/tasks", http.StatusUnauthorized, "Not authorized, token failed")
	err := h.sess.LoadTasks(context.Background(), taskview.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, taskview.ErrAuthRequired)

	assert.Nil(t, h.sess.User(), "the UI routes to sign-in when the user is cleared")
	assert.Equal(t, channel.StateClosed, h.sess.Connectivity())
}

func TestLogout_ClearsEverything(t *testing.T) {
	srv := fakeapi.New(t)
	ada := srv.AddUser("Ada", "ada@example.com", "secret1")
	srv.SeedTask(model.Task{Title: "x", CreatedBy: &ada})
	cache := testutil.NewTestStore(t)

	h := newHarness(t, srv, harnessOpts{cache: cache})
	h.login(t, "ada@example.com")
	h.load(t)
	require.Len(t, h.sess.View().Tasks(), 1)

	require.NoError(t, h.sess.Logout(context.Background()))
	assert.Nil(t, h.sess.User())
	assert.Empty(t, h.sess.View().Tasks())
	assert.Equal(t, channel.StateClosed, h.sess.Connectivity())

	_, err := cache.LoadSnapshot(context.Background(), taskview.Query{}.Key())
	assert.ErrorIs(t, err, store.ErrNoSnapshot)

	cached, _ := h.tokens.Token()
	assert.Empty(t, cached)
}

func TestRestoreSnapshot_FromPreviousRun(t *testing.T) {
	srv := fakeapi.New(t)
	ada := srv.AddUser("Ada", "ada@example.com", "secret1")
	seeded := srv.SeedTask(model.Task{Title: "cached", CreatedBy: &ada})
	cache := testutil.NewTestStore(t)

	first := newHarness(t, srv, harnessOpts{cache: cache})
	first.login(t, "ada@example.com")
	first.load(t)

	second := newHarness(t, srv, harnessOpts{cache: cache})
	require.True(t, second.sess.RestoreSnapshot(context.Background(), taskview.Query{}))
	got := second.sess.View().Tasks()
	require.Len(t, got, 1)
	assert.Equal(t, seeded.ID, got[0].ID)
	assert.True(t, second.sess.View().Stale())

	assert.False(t, second.sess.RestoreSnapshot(context.Background(), taskview.Query{Filter: taskview.FilterOverdue}))
}

func TestUsers_FallsBackToCache(t *testing.T) {
	srv := fakeapi.New(t)
	srv.AddUser("Ada", "ada@example.com", "secret1")
	srv.AddUser("Bob", "bob@example.com", "secret1")
	cache := testutil.NewTestStore(t)

	h := newHarness(t, srv, harnessOpts{cache: cache, timeout: 100 * time.Millisecond})
	h.login(t, "ada@example.com")

	users, err := h.sess.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	srv.SetDelay(300 * time.Millisecond)
	users, err = h.sess.Users(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestDisconnect_RaisesWarning(t *testing.T) {
	srv := fakeapi.New(t)
	srv.AddUser("Ada", "ada@example.com", "secret1")
	h := newHarness(t, srv, harnessOpts{})
	h.login(t, "ada@example.com")

	srv.DropPeers()
	require.Eventually(t, func() bool {
		for _, n := range h.sess.Toasts().Active() {
			if n.Severity == model.SeverityWarning {
				return true
			}
		}
		return false
	}, waitFor, tick)

	// The channel comes back and re-announces the user.
	waitJoins(t, srv, 2)
}

func TestChanges_Coalesced(t *testing.T) {
	srv := fakeapi.New(t)
	h := newHarness(t, srv, harnessOpts{})

	h.sess.Toasts().Info("one")
	h.sess.Toasts().Info("two")

	select {
	case <-h.sess.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-h.sess.Changes():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestUpdateProfile(t *testing.T) {
	srv := fakeapi.New(t)
	srv.AddUser("Ada", "ada@example.com", "secret1")
	h := newHarness(t, srv, harnessOpts{})

	assert.ErrorIs(t, h.sess.UpdateProfile(context.Background(), model.ProfileUpdate{Name: "x"}), ErrNotSignedIn)

	h.login(t, "ada@example.com")
	require.NoError(t, h.sess.UpdateProfile(context.Background(), model.ProfileUpdate{Name: "Ada L."}))
	assert.Equal(t, "Ada L.", h.sess.User().Name)
}
