package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/taskview"
)

func listCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "list"}
	addListFlags(c)
	for k, v := range flags {
		require.NoError(t, c.Flags().Set(k, v))
	}
	return c
}

func TestQueryFromFlags(t *testing.T) {
	q, err := queryFromFlags(listCommand(t, nil))
	require.NoError(t, err)
	assert.Equal(t, taskview.Query{Filter: taskview.FilterAll}, q)

	q, err = queryFromFlags(listCommand(t, map[string]string{
		"status":   "in-progress",
		"priority": "high",
		"sort":     "dueDate",
		"order":    "desc",
	}))
	require.NoError(t, err)
	assert.Equal(t, taskview.Query{
		Filter:    taskview.FilterAll,
		Status:    model.StatusInProgress,
		Priority:  model.PriorityHigh,
		SortBy:    "dueDate",
		SortOrder: "desc",
	}, q)

	q, err = queryFromFlags(listCommand(t, map[string]string{"filter": "overdue"}))
	require.NoError(t, err)
	assert.Equal(t, taskview.FilterOverdue, q.Filter)
}

func TestQueryFromFlagsRejectsBadInput(t *testing.T) {
	for name, flags := range map[string]map[string]string{
		"unknown filter":      {"filter": "mine"},
		"unknown status":      {"status": "Blocked"},
		"unknown priority":    {"priority": "Critical"},
		"bad order":           {"sort": "title", "order": "sideways"},
		"params on assigned":  {"filter": "assigned", "status": "Review"},
		"sort on created tab": {"filter": "created", "sort": "title"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := queryFromFlags(listCommand(t, flags))
			assert.Error(t, err)
		})
	}
}

func TestInputFromFlags(t *testing.T) {
	c := &cobra.Command{Use: "create"}
	addCreateFlags(c)
	require.NoError(t, c.Flags().Set("priority", "urgent"))
	require.NoError(t, c.Flags().Set("due", "2026-03-01"))

	in, err := inputFromFlags(c, "  Ship it  ")
	require.NoError(t, err)
	assert.Equal(t, "Ship it", in.Title)
	assert.Equal(t, model.PriorityUrgent, in.Priority)
	assert.Equal(t, model.StatusTodo, in.Status)
	require.NotNil(t, in.DueDate)
	assert.Equal(t, "2026-03-01", in.DueDate.Format(dateLayout))

	require.NoError(t, c.Flags().Set("due", "March 1st"))
	_, err = inputFromFlags(c, "Ship it")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestRenderTaskTable(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	tasks := []model.Task{
		{ID: "t1", Title: "Write docs", Status: model.StatusTodo, Priority: model.PriorityLow, DueDate: &past},
		{ID: "t2", Title: "Ship", Status: model.StatusCompleted, Priority: model.PriorityHigh,
			AssignedTo: &model.User{ID: "u1", Name: "Ada"}},
	}

	out := renderTaskTable(tasks, now)
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Write docs")
	assert.Contains(t, out, "(overdue)")
	assert.Contains(t, out, "Ada")
}
