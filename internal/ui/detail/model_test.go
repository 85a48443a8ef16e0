package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/keys"
	"github.com/nhle/taskboard/internal/model"
)

func newTestModel() Model {
	m := New(keys.DefaultKeyMap(), 80, 30)
	m.now = func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) }
	return m
}

func press(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewShowsTaskFields(t *testing.T) {
	m := newTestModel()
	assert.Contains(t, m.View(), "No task selected")

	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m.SetTask(model.Task{
		ID:         "t1",
		Title:      "Write report",
		Status:     model.StatusReview,
		Priority:   model.PriorityHigh,
		DueDate:    &due,
		AssignedTo: &model.User{ID: "u1", Name: "Ada"},
		CreatedBy:  &model.User{ID: "u2", Name: "Grace"},
	})

	out := m.View()
	assert.Contains(t, out, "Write report")
	assert.Contains(t, out, "Review")
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "Grace")
	assert.Contains(t, out, "OVERDUE")
	assert.Contains(t, out, "No description")
}

func TestKeysEmitActions(t *testing.T) {
	m := newTestModel()
	task := model.Task{ID: "t1", Title: "Flip", Status: model.StatusTodo}
	m.SetTask(task)

	for k, want := range map[string]Action{
		"e": ActionEdit,
		"x": ActionComplete,
		"m": ActionAdvance,
		"d": ActionDelete,
	} {
		_, cmd := m.Update(press(k))
		require.NotNil(t, cmd, k)
		msg, ok := cmd().(ActionMsg)
		require.True(t, ok, k)
		assert.Equal(t, want, msg.Action)
		assert.Equal(t, "t1", msg.Task.ID)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())
}

func TestCompleteIgnoredWhenDone(t *testing.T) {
	m := newTestModel()
	m.SetTask(model.Task{ID: "t1", Title: "Done", Status: model.StatusCompleted})

	_, cmd := m.Update(press("x"))
	assert.Nil(t, cmd)
}

func TestNoActionsWithoutTask(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(press("e"))
	assert.Nil(t, cmd)
}

func TestRefreshReplacesTask(t *testing.T) {
	m := newTestModel()
	m.SetTask(model.Task{ID: "t1", Title: "Old"})
	m.Refresh(model.Task{ID: "t1", Title: "New"})

	got, ok := m.Task()
	require.True(t, ok)
	assert.Equal(t, "New", got.Title)
	assert.Contains(t, m.View(), "New")

	m.Clear()
	_, ok = m.Task()
	assert.False(t, ok)
}
