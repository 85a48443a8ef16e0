package taskform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
)

func existing() model.Task {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local)
	return model.Task{
		ID:          "t1",
		Title:       "Plan sprint",
		Description: "notes",
		Priority:    model.PriorityMedium,
		Status:      model.StatusTodo,
		DueDate:     &due,
		AssignedTo:  &model.User{ID: "u1"},
	}
}

func TestEditWithoutChangesIsEmpty(t *testing.T) {
	m := New(80, 24)
	m.StartEdit(existing())

	msg := m.handleSubmit()()
	upd, ok := msg.(UpdateMsg)
	require.True(t, ok)
	assert.Equal(t, "t1", upd.ID)
	assert.True(t, upd.Patch.IsEmpty())
}

func TestDiffCarriesOnlyChanges(t *testing.T) {
	orig := existing()
	fb := formBindings{
		title:       "  Plan sprint 2 ",
		description: "notes",
		priority:    model.PriorityUrgent,
		status:      model.StatusTodo,
		assigneeID:  "u2",
	}
	p := diff(orig, fb, nil)

	require.NotNil(t, p.Title)
	assert.Equal(t, "Plan sprint 2", *p.Title)
	assert.Nil(t, p.Description)
	require.NotNil(t, p.Priority)
	assert.Equal(t, model.PriorityUrgent, *p.Priority)
	assert.Nil(t, p.Status)
	assert.True(t, p.ClearDueDate)
	require.NotNil(t, p.AssignedToID)
	assert.Equal(t, "u2", *p.AssignedToID)
	assert.NoError(t, model.ValidatePatch(p))
}

func TestDiffClearsAssigneeAndMovesDueDate(t *testing.T) {
	orig := existing()
	fb := formBindings{
		title:    orig.Title,
		priority: orig.Priority,
		status:   orig.Status,
	}
	moved := parseDate("2026-05-03")
	p := diff(orig, fb, moved)

	assert.True(t, p.ClearAssignee)
	assert.Nil(t, p.AssignedToID)
	assert.False(t, p.ClearDueDate)
	require.NotNil(t, p.DueDate)
	require.NotNil(t, p.Description)
	assert.Empty(t, *p.Description)
}

func TestCreateSubmit(t *testing.T) {
	m := New(80, 24)
	m.SetUsers([]model.User{{ID: "u1", Name: "Ada"}})
	m.StartCreate()
	m.fb.title = "Ship"
	m.fb.dueDate = "2026-06-01"
	m.fb.assigneeID = "u1"

	msg := m.handleSubmit()()
	created, ok := msg.(CreateMsg)
	require.True(t, ok)
	assert.Equal(t, "Ship", created.Input.Title)
	assert.Equal(t, model.DefaultPriority, created.Input.Priority)
	assert.Equal(t, model.DefaultStatus, created.Input.Status)
	assert.Equal(t, "u1", created.Input.AssignedToID)
	require.NotNil(t, created.Input.DueDate)
	assert.Equal(t, "2026-06-01", created.Input.DueDate.Format(dateLayout))
}

func TestValidateOptionalDate(t *testing.T) {
	assert.NoError(t, validateOptionalDate(""))
	assert.NoError(t, validateOptionalDate("2026-01-31"))
	assert.Error(t, validateOptionalDate("31/01/2026"))
	assert.Nil(t, parseDate("garbage"))
}

func TestViewShowsError(t *testing.T) {
	m := New(80, 24)
	m.StartCreate()
	m.SetError("Title is required")
	assert.Contains(t, m.View(), "Title is required")
	assert.Contains(t, m.View(), "New Task")
}
