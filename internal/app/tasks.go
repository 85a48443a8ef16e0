package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/taskview"
)

// sessionStartedMsg is sent after probing for an existing session.
type sessionStartedMsg struct{ err error }

// authResultMsg is sent after a login or registration attempt.
type authResultMsg struct{ err error }

// sessionChangedMsg is sent whenever the session signals a state change.
type sessionChangedMsg struct{}

// tasksLoadedMsg is sent after a load of the current query.
type tasksLoadedMsg struct{ err error }

// usersLoadedMsg carries the user directory for the assignee picker.
type usersLoadedMsg struct {
	users []model.User
	err   error
}

// writeOp names a task write for result handling.
type writeOp int

const (
	opCreate writeOp = iota
	opUpdate
	opDelete
)

// taskWriteResultMsg is sent after a create, update or delete.
type taskWriteResultMsg struct {
	op    writeOp
	title string
	err   error
}

// toastTickMsg fires when the oldest toast is due to disappear.
type toastTickMsg struct{}

// loggedOutMsg is sent after logout completes.
type loggedOutMsg struct{ err error }

func (m *Model) startSession() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		return sessionStartedMsg{err: s.Start(context.Background())}
	}
}

func (m *Model) waitForChange() tea.Cmd {
	changes := m.sess.Changes()
	return func() tea.Msg {
		<-changes
		return sessionChangedMsg{}
	}
}

func (m *Model) login(email, password string) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		return authResultMsg{err: s.Login(context.Background(), email, password)}
	}
}

func (m *Model) register(email, name, password string) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		return authResultMsg{err: s.Register(context.Background(), email, name, password)}
	}
}

func (m *Model) logout() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		return loggedOutMsg{err: s.Logout(context.Background())}
	}
}

// loadTasks loads q into the session's view.
func (m *Model) loadTasks(q taskview.Query) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		return tasksLoadedMsg{err: s.LoadTasks(context.Background(), q)}
	}
}

func (m *Model) loadUsers() tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		users, err := s.Users(context.Background())
		return usersLoadedMsg{users: users, err: err}
	}
}

func (m *Model) createTask(in model.TaskInput) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		t, err := s.CreateTask(context.Background(), in)
		if err != nil {
			return taskWriteResultMsg{op: opCreate, title: in.Title, err: err}
		}
		return taskWriteResultMsg{op: opCreate, title: t.Title}
	}
}

func (m *Model) updateTask(id string, patch model.TaskPatch) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		t, err := s.UpdateTask(context.Background(), id, patch)
		if err != nil {
			return taskWriteResultMsg{op: opUpdate, err: err}
		}
		return taskWriteResultMsg{op: opUpdate, title: t.Title}
	}
}

func (m *Model) deleteTask(t model.Task) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		return taskWriteResultMsg{op: opDelete, title: t.Title, err: s.DeleteTask(context.Background(), t.ID)}
	}
}

// setStatus moves t to status with a one-field patch.
func (m *Model) setStatus(t model.Task, status model.Status) tea.Cmd {
	return m.updateTask(t.ID, model.TaskPatch{Status: model.StatusPtr(status)})
}

// nextStatus advances through the workflow, wrapping after Completed.
func nextStatus(s model.Status) model.Status {
	all := model.AllStatuses()
	for i, known := range all {
		if known == s {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}
