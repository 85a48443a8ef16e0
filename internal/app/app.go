package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/channel"
	"github.com/nhle/taskboard/internal/keys"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/session"
	appsync "github.com/nhle/taskboard/internal/sync"
	"github.com/nhle/taskboard/internal/taskview"
	"github.com/nhle/taskboard/internal/theme"
	"github.com/nhle/taskboard/internal/ui"
	"github.com/nhle/taskboard/internal/ui/authform"
	"github.com/nhle/taskboard/internal/ui/command"
	"github.com/nhle/taskboard/internal/ui/detail"
	helpview "github.com/nhle/taskboard/internal/ui/help"
	"github.com/nhle/taskboard/internal/ui/taskform"
	"github.com/nhle/taskboard/internal/ui/tasklist"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewAuth ViewState = iota
	ViewList
	ViewDetail
	ViewHelp
	ViewCommand
	ViewTaskCreate
	ViewTaskEdit
	ViewConfirmDelete
)

// Options configures the root model.
type Options struct {
	Session *session.Session

	// Poller is optional; nil disables degraded-mode refreshing.
	Poller *appsync.Poller

	// Query is the initial listing.
	Query taskview.Query

	// Now overrides the clock used for stats (tests).
	Now func() time.Time
}

// Model is the root Bubble Tea model that manages view routing and layout
// on top of a session.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	sess         *session.Session
	poller       *appsync.Poller
	now          func() time.Time

	authForm    authform.Model
	taskList    tasklist.Model
	detailView  detail.Model
	taskForm    taskform.Model
	helpView    helpview.Model
	commandView command.Model

	confirm       *huh.Form
	confirmDelete *bool
	pendingDelete model.Task

	starting   bool
	loggingOut bool
	ready      bool
}

// New creates a new root application model.
func New(opts Options) Model {
	km := keys.DefaultKeyMap()
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	list := tasklist.New(km, 80, 24)
	list.SetQuery(opts.Query)

	return Model{
		currentView: ViewAuth,
		sess:        opts.Session,
		poller:      opts.Poller,
		now:         now,
		authForm:    authform.New(80, 24),
		taskList:    list,
		detailView:  detail.New(km, 80, 24),
		taskForm:    taskform.New(80, 24),
		helpView:    helpview.New(km, 80, 24),
		commandView: command.New(80, 24),
		layout:      ui.NewLayout(80, 24),
		starting:    true,
	}
}

// CurrentView returns the active view.
func (m Model) CurrentView() ViewState { return m.currentView }

// Init probes for an existing session and starts listening for changes.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.startSession(), m.waitForChange()}
	if m.poller != nil {
		cmds = append(cmds, m.poller.Start())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.authForm.SetSize(w, h)
		m.taskList.SetSize(w, h)
		m.detailView.SetSize(w, h)
		m.taskForm.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case sessionStartedMsg:
		m.starting = false
		if msg.err != nil {
			m.sess.Toasts().Error(api.Message(msg.err))
		}
		if m.sess.User() == nil {
			cmd := m.showAuth("")
			return m, cmd
		}
		cmd := m.enterList()
		return m, cmd

	case authResultMsg:
		if msg.err != nil {
			cmd := m.authForm.SetError(api.Message(msg.err))
			return m, cmd
		}
		m.sess.Toasts().Success("Welcome, " + m.sess.User().DisplayName())
		cmd := m.enterList()
		return m, cmd

	case loggedOutMsg:
		m.loggingOut = false
		if msg.err != nil {
			m.sess.Toasts().Warn("Signed out locally: " + api.Message(msg.err))
		}
		cmd := m.showAuth("")
		return m, cmd

	case sessionChangedMsg:
		cmds := []tea.Cmd{m.waitForChange(), m.scheduleToastTick()}
		if m.sess.User() == nil && m.currentView != ViewAuth && !m.starting && !m.loggingOut {
			cmds = append(cmds, m.showAuth("Your session has ended. Please sign in again."))
		} else {
			cmds = append(cmds, m.taskList.SetTasks(m.sess.View().Tasks()))
			m.syncDetail()
		}
		return m, tea.Batch(cmds...)

	case toastTickMsg:
		return m, m.scheduleToastTick()

	case tasksLoadedMsg:
		if errors.Is(msg.err, taskview.ErrSuperseded) {
			return m, nil
		}
		if msg.err != nil && !errors.Is(msg.err, taskview.ErrAuthRequired) {
			m.sess.Toasts().Error(m.sess.View().Err())
		}
		cmd := m.taskList.SetTasks(m.sess.View().Tasks())
		return m, cmd

	case usersLoadedMsg:
		if msg.err == nil {
			m.taskForm.SetUsers(msg.users)
		}
		return m, nil

	case appsync.RefreshResultMsg:
		return m, m.poller.WaitForNextResult()

	case authform.LoginMsg:
		return m, m.login(msg.Email, msg.Password)

	case authform.RegisterMsg:
		return m, m.register(msg.Email, msg.Name, msg.Password)

	case tasklist.QueryChangedMsg:
		return m, m.loadTasks(msg.Query)

	case tasklist.SelectedTaskMsg:
		m.detailView.SetTask(msg.Task)
		m.currentView = ViewDetail
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case detail.ActionMsg:
		return m.handleDetailAction(msg)

	case taskform.CreateMsg:
		return m, m.createTask(msg.Input)

	case taskform.UpdateMsg:
		if msg.Patch.IsEmpty() {
			m.currentView = m.returnView()
			m.sess.Toasts().Info("Nothing to update")
			return m, nil
		}
		return m, m.updateTask(msg.ID, msg.Patch)

	case taskform.CancelMsg:
		m.currentView = m.returnView()
		return m, nil

	case taskWriteResultMsg:
		return m.handleWriteResult(msg)

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if m.currentView == ViewList && !m.taskList.Searching() {
			if handled, next, cmd := m.handleListKeys(msg); handled {
				return next, cmd
			}
		}
		if m.currentView == ViewDetail && msg.String() == "q" {
			m.currentView = ViewList
			return m, nil
		}
		if m.currentView == ViewHelp && (msg.String() == "?" || msg.String() == "esc") {
			m.currentView = m.previousView
			return m, nil
		}
		if m.currentView == ViewCommand && msg.String() == "esc" {
			m.currentView = m.previousView
			return m, nil
		}
	}

	return m.updateActiveView(msg)
}

// handleListKeys processes the global keys of the list view.
func (m Model) handleListKeys(msg tea.KeyMsg) (bool, Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return true, m, m.quit()

	case "?":
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return true, m, nil

	case ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		cmd := m.commandView.Focus()
		return true, m, cmd

	case "r":
		return true, m, m.refresh()

	case "n":
		cmd := m.startCreate()
		return true, m, cmd

	case "e":
		if t, ok := m.taskList.SelectedTask(); ok {
			cmd := m.startEdit(t)
			return true, m, cmd
		}
		return true, m, nil

	case "x":
		if t, ok := m.taskList.SelectedTask(); ok && !t.IsCompleted() {
			return true, m, m.setStatus(t, model.StatusCompleted)
		}
		return true, m, nil

	case "m":
		if t, ok := m.taskList.SelectedTask(); ok {
			return true, m, m.setStatus(t, nextStatus(t.Status))
		}
		return true, m, nil

	case "d":
		if t, ok := m.taskList.SelectedTask(); ok {
			cmd := m.askDelete(t)
			return true, m, cmd
		}
		return true, m, nil

	case "L":
		m.loggingOut = true
		return true, m, m.logout()
	}
	return false, m, nil
}

func (m *Model) showAuth(reason string) tea.Cmd {
	m.currentView = ViewAuth
	if reason != "" {
		return m.authForm.SetError(reason)
	}
	return m.authForm.Start()
}

// enterList switches to the list, shows any cached snapshot and loads.
func (m *Model) enterList() tea.Cmd {
	m.currentView = ViewList
	q := m.taskList.Query()
	m.sess.RestoreSnapshot(context.Background(), q)
	return tea.Batch(
		m.taskList.SetTasks(m.sess.View().Tasks()),
		m.loadTasks(q),
		m.loadUsers(),
	)
}

func (m *Model) startEdit(t model.Task) tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewTaskEdit
	return m.taskForm.StartEdit(t)
}

func (m *Model) startCreate() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewTaskCreate
	return m.taskForm.StartCreate()
}

// returnView is where a finished form goes back to: the detail view when
// the form was opened there, the list otherwise. Other views stay put.
func (m Model) returnView() ViewState {
	switch m.currentView {
	case ViewTaskCreate, ViewTaskEdit:
		if _, ok := m.detailView.Task(); ok && m.previousView == ViewDetail {
			return ViewDetail
		}
		return ViewList
	}
	return m.currentView
}

func (m Model) handleDetailAction(msg detail.ActionMsg) (tea.Model, tea.Cmd) {
	switch msg.Action {
	case detail.ActionEdit:
		cmd := m.startEdit(msg.Task)
		return m, cmd
	case detail.ActionComplete:
		return m, m.setStatus(msg.Task, model.StatusCompleted)
	case detail.ActionAdvance:
		return m, m.setStatus(msg.Task, nextStatus(msg.Task.Status))
	case detail.ActionDelete:
		cmd := m.askDelete(msg.Task)
		return m, cmd
	}
	return m, nil
}

// syncDetail keeps the detail view in step with live changes to its task.
func (m *Model) syncDetail() {
	shown, ok := m.detailView.Task()
	if !ok {
		return
	}
	if t, found := m.sess.View().Find(shown.ID); found {
		m.detailView.Refresh(t)
		return
	}
	m.detailView.Clear()
	if m.currentView == ViewDetail {
		m.currentView = ViewList
		m.sess.Toasts().Info(fmt.Sprintf("%q is no longer in this list", shown.Title))
	}
}

func (m *Model) askDelete(t model.Task) tea.Cmd {
	confirmed := false
	m.confirmDelete = &confirmed
	m.pendingDelete = t
	m.confirm = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q?", t.Title)).
			Affirmative("Delete").
			Negative("Keep").
			Value(m.confirmDelete),
	))
	m.previousView = m.currentView
	m.currentView = ViewConfirmDelete
	return m.confirm.Init()
}

func (m *Model) refresh() tea.Cmd {
	if m.poller != nil {
		return m.poller.Refresh()
	}
	return m.loadTasks(m.taskList.Query())
}

func (m *Model) quit() tea.Cmd {
	if m.poller != nil {
		m.poller.Stop()
	}
	return tea.Quit
}

func (m Model) handleWriteResult(msg taskWriteResultMsg) (tea.Model, tea.Cmd) {
	toasts := m.sess.Toasts()

	if msg.err != nil {
		text := api.Message(msg.err)
		if errors.Is(msg.err, session.ErrEmptyPatch) {
			m.currentView = m.returnView()
			toasts.Info("Nothing to update")
			return m, nil
		}
		if api.IsAuthRequired(msg.err) {
			m.sess.HandleAuthRequired()
			return m, nil
		}
		// Form submissions stay open so the user can correct them.
		if m.currentView == ViewTaskCreate || m.currentView == ViewTaskEdit {
			m.taskForm.SetError(text)
			cmd := m.taskForm.Resume()
			return m, cmd
		}
		toasts.Error(text)
		return m, nil
	}

	m.currentView = m.returnView()
	switch msg.op {
	case opCreate:
		toasts.Success("Created: " + msg.title)
	case opUpdate:
		toasts.Success("Updated: " + msg.title)
	case opDelete:
		toasts.Success("Deleted: " + msg.title)
	}
	cmd := m.taskList.SetTasks(m.sess.View().Tasks())
	m.syncDetail()
	return m, cmd
}

// scheduleToastTick wakes the UI when the oldest toast expires.
func (m Model) scheduleToastTick() tea.Cmd {
	at, ok := m.sess.Toasts().NextExpiry()
	if !ok {
		return nil
	}
	return tea.Tick(max(time.Until(at), 10*time.Millisecond), func(time.Time) tea.Msg {
		return toastTickMsg{}
	})
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	if m.sess.User() == nil {
		return nil
	}
	q := m.taskList.Query()
	args := c.Args()

	spec, ok := command.Lookup(c.Name())
	if !ok {
		m.sess.Toasts().Warn(fmt.Sprintf("Unknown command %q", c.Name()))
		return nil
	}

	switch spec.Name {
	case "refresh":
		return m.refresh()
	case "quit":
		return m.quit()
	case "logout":
		m.loggingOut = true
		return m.logout()
	case "new":
		return m.startCreate()
	case "all", "assigned", "created", "overdue":
		f, _ := taskview.ParseFilter(spec.Name)
		return m.applyQuery(taskview.Query{Filter: f})
	case "status":
		s, err := model.ParseStatus(strings.Join(args, " "))
		if err != nil {
			m.sess.Toasts().Error(err.Error())
			return nil
		}
		q.Filter, q.Status = taskview.FilterAll, s
		return m.applyQuery(q)
	case "priority":
		p, err := model.ParsePriority(strings.Join(args, " "))
		if err != nil {
			m.sess.Toasts().Error(err.Error())
			return nil
		}
		q.Filter, q.Priority = taskview.FilterAll, p
		return m.applyQuery(q)
	case "sort":
		if len(args) == 0 {
			return nil
		}
		q.Filter, q.SortBy, q.SortOrder = taskview.FilterAll, args[0], "asc"
		if len(args) > 1 && strings.EqualFold(args[1], "desc") {
			q.SortOrder = "desc"
		}
		return m.applyQuery(q)
	case "clear":
		return m.applyQuery(taskview.Query{Filter: q.Filter})
	}
	return nil
}

func (m *Model) applyQuery(q taskview.Query) tea.Cmd {
	m.taskList.SetQuery(q)
	return m.loadTasks(q)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewAuth:
		m.authForm, cmd = m.authForm.Update(msg)
	case ViewList:
		m.taskList, cmd = m.taskList.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewTaskCreate, ViewTaskEdit:
		m.taskForm, cmd = m.taskForm.Update(msg)
	case ViewConfirmDelete:
		return m.updateConfirm(msg)
	}

	return m, cmd
}

func (m Model) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.confirm == nil {
		m.currentView = ViewList
		return m, nil
	}
	mdl, cmd := m.confirm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirm = f
	}
	switch m.confirm.State {
	case huh.StateCompleted:
		m.currentView = ViewList
		m.confirm = nil
		if *m.confirmDelete {
			return m, m.deleteTask(m.pendingDelete)
		}
		return m, nil
	case huh.StateAborted:
		m.currentView = ViewList
		m.confirm = nil
		return m, nil
	}
	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.connectivity())
	content := m.renderContent()
	toasts := m.layout.RenderToasts(m.sess.Toasts().Active())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, toasts, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewAuth:
		if m.starting {
			return theme.HelpStyle.Render("Checking session...")
		}
		return m.authForm.View()
	case ViewList:
		return m.taskList.View()
	case ViewDetail:
		return m.detailView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewTaskCreate, ViewTaskEdit:
		return m.taskForm.View()
	case ViewConfirmDelete:
		if m.confirm == nil {
			return ""
		}
		return theme.PanelStyle.Render(m.confirm.View())
	default:
		return ""
	}
}

func (m Model) headerTitle() string {
	u := m.sess.User()
	if u == nil {
		return "Taskboard"
	}
	st := m.sess.View().Stats(m.now(), u.ID)
	return fmt.Sprintf("Taskboard | %s | %d tasks, %d open for me, %d overdue",
		u.DisplayName(), st.Total, st.AssignedOpen, st.Overdue)
}

// connectivity returns the live-update indicator for the header.
func (m Model) connectivity() string {
	if m.sess.User() == nil {
		return "signed out"
	}

	var parts []string
	if m.sess.View().Loading() {
		parts = append(parts, "loading")
	}
	if m.sess.View().Stale() {
		parts = append(parts, "cached")
	}
	switch m.sess.Connectivity() {
	case channel.StateOpen:
		parts = append(parts, "● live")
	case channel.StateConnecting:
		parts = append(parts, "○ reconnecting")
	default:
		parts = append(parts, "○ offline, polling")
	}
	return strings.Join(parts, " · ")
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewAuth:
		return "enter next | shift+tab back | ctrl+c quit"
	case ViewDetail:
		return "esc back | e edit | x done | m next status | d delete | j/k scroll"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return ": close command | enter execute | esc back"
	case ViewTaskCreate, ViewTaskEdit:
		return "enter submit | esc cancel"
	case ViewConfirmDelete:
		return "←/→ choose | enter confirm | esc cancel"
	default:
		if msg := m.sess.View().Err(); msg != "" {
			return msg + " | r retry"
		}
		if summary := m.taskList.FilterSummary(); summary != "" {
			return summary + " | :clear"
		}
		return "q quit | ? help | n new | e edit | x done | d delete | 1-4 tabs | / search"
	}
}
