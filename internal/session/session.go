// Package session ties the REST client, the push channel, the task view and
// the toast center together for one signed-in user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/channel"
	"github.com/nhle/taskboard/internal/logging"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/notify"
	"github.com/nhle/taskboard/internal/store"
	"github.com/nhle/taskboard/internal/taskview"
)

// ErrNotSignedIn is returned by operations that need a current user.
var ErrNotSignedIn = errors.New("not signed in")

// ErrEmptyPatch is returned by UpdateTask when the patch changes nothing.
var ErrEmptyPatch = errors.New("nothing to update")

// Client is the subset of the REST client the session drives.
type Client interface {
	taskview.Source
	GetCurrentUser(ctx context.Context) (*model.User, error)
	Login(ctx context.Context, email, password string) (*api.AuthResult, error)
	Register(ctx context.Context, email, name, password string) (*api.AuthResult, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Channel is the push connection the session owns.
type Channel interface {
	Open(ctx context.Context, userID string)
	Close()
	State() channel.State
	On(event string, h channel.Handler) *channel.Subscription
	OnState(fn func(channel.State)) *channel.Subscription
	EmitTaskUpdated(t model.Task)
	EmitTaskCreated(t model.Task)
	EmitTaskDeleted(taskID string)
	EmitTaskAssigned(a channel.Assignment)
}

// Options configures a Session.
type Options struct {
	Client  Client
	Channel Channel
	View    *taskview.View
	Toasts  *notify.Center

	// Cache is optional; nil disables offline snapshots.
	Cache store.Store

	// EchoWrites re-broadcasts this client's successful writes to peers.
	EchoWrites bool
}

// Session is the signed-in state of the application. It replaces a
// process-wide socket: each Session owns exactly one channel.
type Session struct {
	client Client
	ch     Channel
	view   *taskview.View
	toasts *notify.Center
	cache  store.Store
	echo   bool
	log    zerolog.Logger

	mu          sync.Mutex
	user        *model.User
	authLoading bool
	lastState   channel.State
	subs        []*channel.Subscription

	changes chan struct{}
}

// New creates an anonymous Session and subscribes to the channel.
func New(opts Options) *Session {
	toasts := opts.Toasts
	if toasts == nil {
		toasts = notify.NewCenter()
	}
	view := opts.View
	if view == nil {
		view = taskview.New(opts.Client)
	}

	s := &Session{
		client:  opts.Client,
		ch:      opts.Channel,
		view:    view,
		toasts:  toasts,
		cache:   opts.Cache,
		echo:    opts.EchoWrites,
		log:     logging.WithComponent("session"),
		changes: make(chan struct{}, 1),
	}
	toasts.OnChange(s.signal)

	s.subs = []*channel.Subscription{
		s.ch.On(channel.EventTaskUpdated, s.onTaskUpdated),
		s.ch.On(channel.EventTaskCreated, s.onTaskCreated),
		s.ch.On(channel.EventTaskDeleted, s.onTaskDeleted),
		s.ch.On(channel.EventAssignmentNotification, s.onAssignment),
		s.ch.OnState(s.onState),
	}
	return s
}

// Close tears down the channel and drops the subscriptions.
func (s *Session) Close() {
	s.ch.Close()
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// View returns the task collection.
func (s *Session) View() *taskview.View { return s.view }

// Toasts returns the toast center.
func (s *Session) Toasts() *notify.Center { return s.toasts }

// Changes delivers a coalesced signal whenever the view, the toasts, the
// user or the connectivity changed.
func (s *Session) Changes() <-chan struct{} { return s.changes }

func (s *Session) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UserID returns the signed-in user's id, or "".
func (s *Session) UserID() string {
	if u := s.User(); u != nil {
		return u.ID
	}
	return ""
}

// AuthLoading reports whether the startup probe is still running.
func (s *Session) AuthLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authLoading
}

// Connectivity returns the push channel state.
func (s *Session) Connectivity() channel.State {
	return s.ch.State()
}

// Start probes the service for an existing session. A 401 leaves the
// session anonymous and is not an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.authLoading = true
	s.mu.Unlock()
	s.signal()

	u, err := s.client.GetCurrentUser(ctx)

	s.mu.Lock()
	s.authLoading = false
	s.mu.Unlock()

	switch {
	case err == nil:
		s.signIn(ctx, u)
		return nil
	case api.IsAuthRequired(err):
		s.log.Debug().Msg("no existing session")
		s.signal()
		return nil
	default:
		s.signal()
		return fmt.Errorf("probing current user: %w", err)
	}
}

// Login validates the credentials, signs in and opens the channel.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if err := model.ValidateCredentials(email, password); err != nil {
		return err
	}
	res, err := s.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return s.finishAuth(ctx, res)
}

// Register validates the form, creates the account and signs in.
func (s *Session) Register(ctx context.Context, email, name, password string) error {
	if err := model.ValidateRegistration(email, name, password); err != nil {
		return err
	}
	res, err := s.client.Register(ctx, email, name, password)
	if err != nil {
		return err
	}
	return s.finishAuth(ctx, res)
}

func (s *Session) finishAuth(ctx context.Context, res *api.AuthResult) error {
	u := res.User
	if u == nil || u.ID == "" {
		me, err := s.client.GetCurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		u = me
	}
	s.signIn(ctx, u)
	return nil
}

func (s *Session) signIn(ctx context.Context, u *model.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()

	l := logging.WithUserID(u.ID)
	l.Info().Msg("signed in")
	// The channel outlives the request that signed us in.
	s.ch.Open(context.WithoutCancel(ctx), u.ID)
	s.signal()
}

// Logout ends the session remotely and locally. Local state is cleared
// even when the remote call fails; the remote error is still returned.
func (s *Session) Logout(ctx context.Context) error {
	err := s.client.Logout(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("remote logout failed")
	}
	s.signOut(ctx)
	return err
}

func (s *Session) signOut(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	s.ch.Close()

	s.view.Reset()
	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			s.log.Warn().Err(err).Msg("clearing cache")
		}
	}
	s.signal()
}

// HandleAuthRequired drops the local session after the service rejected
// our credentials, so the UI falls back to the sign-in screen.
func (s *Session) HandleAuthRequired() {
	s.mu.Lock()
	signedIn := s.user != nil
	s.user = nil
	s.mu.Unlock()

	if signedIn {
		s.log.Info().Msg("session expired")
	}
	s.ch.Close()
	s.signal()
}

// LoadTasks loads q into the view. An ErrAuthRequired result also signs
// the session out locally.
func (s *Session) LoadTasks(ctx context.Context, q taskview.Query) error {
	err := s.view.Load(ctx, q)
	if errors.Is(err, taskview.ErrAuthRequired) {
		s.HandleAuthRequired()
	}
	s.signal()
	return err
}

// Reload repeats the last successful query and returns the number of
// tasks now shown.
func (s *Session) Reload(ctx context.Context) (int, error) {
	if s.User() == nil {
		return 0, ErrNotSignedIn
	}
	if err := s.LoadTasks(ctx, s.view.Query()); err != nil {
		return 0, err
	}
	return len(s.view.Tasks()), nil
}

// OnConnectivity registers fn for channel state changes.
func (s *Session) OnConnectivity(fn func(channel.State)) *channel.Subscription {
	return s.ch.OnState(fn)
}

// RestoreSnapshot seeds the view from the cache, if any.
func (s *Session) RestoreSnapshot(ctx context.Context, q taskview.Query) bool {
	if s.cache == nil {
		return false
	}
	snap, err := s.cache.LoadSnapshot(ctx, q.Key())
	if err != nil {
		if !errors.Is(err, store.ErrNoSnapshot) {
			s.log.Warn().Err(err).Msg("loading snapshot")
		}
		return false
	}
	s.view.Restore(q, snap.Tasks)
	s.signal()
	return true
}

// Users returns the user directory. When the service is unreachable the
// cached directory is returned instead.
func (s *Session) Users(ctx context.Context) ([]model.User, error) {
	users, err := s.client.ListUsers(ctx)
	if err == nil {
		if s.cache != nil {
			if cerr := s.cache.SaveUsers(ctx, users); cerr != nil {
				s.log.Warn().Err(cerr).Msg("caching users")
			}
		}
		return users, nil
	}

	if s.cache != nil && api.IsTransport(err) {
		cached, cerr := s.cache.GetUsers(ctx)
		if cerr == nil && len(cached) > 0 {
			s.log.Info().Int("count", len(cached)).Msg("using cached users")
			return cached, nil
		}
	}
	return nil, err
}

// UpdateProfile changes the signed-in user's name or email.
func (s *Session) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) error {
	if s.User() == nil {
		return ErrNotSignedIn
	}
	u, err := s.client.UpdateProfile(ctx, upd)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	s.signal()
	return nil
}

// CreateTask validates and creates a task, adds it to the view and tells
// peers about it.
func (s *Session) CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	if err := model.ValidateTaskInput(in); err != nil {
		return nil, err
	}
	t, err := s.client.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}

	s.view.ApplyCreate(*t)
	if s.echo {
		s.ch.EmitTaskCreated(*t)
	}
	if in.AssignedToID != "" && in.AssignedToID != s.UserID() {
		s.ch.EmitTaskAssigned(channel.Assignment{
			AssignedToID: in.AssignedToID,
			TaskTitle:    t.Title,
			TaskID:       t.ID,
		})
	}
	l := logging.WithTaskID(t.ID)
	l.Info().Msg("task created")
	s.signal()
	return t, nil
}

// UpdateTask validates and applies a patch, merges the result into the view
// and tells peers. Reassigning to someone else notifies the assignee.
func (s *Session) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	if err := model.ValidatePatch(patch); err != nil {
		return nil, err
	}

	before, known := s.view.Find(id)
	t, err := s.client.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	// t is the full representation; cleared fields must clear locally.
	s.view.Replace(*t)
	if s.echo {
		s.ch.EmitTaskUpdated(*t)
	}
	if patch.AssignedToID != nil {
		to := *patch.AssignedToID
		changed := !known || before.AssigneeID() != to
		if to != "" && to != s.UserID() && changed {
			s.ch.EmitTaskAssigned(channel.Assignment{AssignedToID: to, TaskTitle: t.Title, TaskID: t.ID})
		}
	}
	l := logging.WithTaskID(t.ID)
	l.Info().Msg("task updated")
	s.signal()
	return t, nil
}

// DeleteTask removes a task remotely, then locally, then tells peers.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	if err := s.client.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.view.ApplyDelete(id)
	if s.echo {
		s.ch.EmitTaskDeleted(id)
	}
	l := logging.WithTaskID(id)
	l.Info().Msg("task deleted")
	s.signal()
	return nil
}

func (s *Session) onTaskUpdated(data json.RawMessage) {
	changed, err := s.view.ApplyUpdateJSON(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("inbound task-updated")
		return
	}
	if changed {
		s.signal()
	}
}

func (s *Session) onTaskCreated(data json.RawMessage) {
	t, err := channel.DecodeTask(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("inbound task-created")
		return
	}
	s.view.ApplyCreate(t)
	s.signal()
}

func (s *Session) onTaskDeleted(data json.RawMessage) {
	id, err := channel.DecodeTaskID(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("inbound task-deleted")
		return
	}
	if s.view.ApplyDelete(id) {
		s.signal()
	}
}

func (s *Session) onAssignment(data json.RawMessage) {
	var n channel.AssignmentNotice
	if err := json.Unmarshal(data, &n); err != nil {
		s.log.Warn().Err(err).Msg("inbound assignment-notification")
		return
	}
	s.toasts.Info(n.Text())
}

func (s *Session) onState(state channel.State) {
	s.mu.Lock()
	prev := s.lastState
	s.lastState = state
	signedIn := s.user != nil
	s.mu.Unlock()

	switch {
	case state == channel.StateConnecting && prev == channel.StateOpen:
		s.toasts.Warn("Live updates lost, reconnecting")
	case state == channel.StateClosed && prev != channel.StateOpen && signedIn:
		s.toasts.Error("Live updates unavailable")
	}
	s.signal()
}
