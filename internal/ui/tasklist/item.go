package tasklist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

var (
	listItemStyle = lipgloss.NewStyle().PaddingLeft(2)

	selectedItemStyle = lipgloss.NewStyle().
				PaddingLeft(1).
				Bold(true).
				Foreground(theme.ColorBlue).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(theme.ColorBlue)
)

// TaskItem wraps a model.Task so it can be used in a bubbles/list.
type TaskItem struct {
	Task model.Task
}

// FilterValue returns the string used for fuzzy filtering.
func (i TaskItem) FilterValue() string { return i.Task.Title }

// Title returns the task title for the list.
func (i TaskItem) Title() string { return i.Task.Title }

// Description returns a short summary line for the list.
func (i TaskItem) Description() string {
	parts := []string{
		string(i.Task.Status),
		string(i.Task.Priority),
		relativeTime(i.Task.UpdatedAt, time.Now()),
	}
	return strings.Join(parts, " | ")
}

// TaskDelegate implements list.ItemDelegate for rendering task rows.
type TaskDelegate struct {
	// Now is the clock used for overdue and relative-time rendering.
	Now func() time.Time
}

// Height returns the number of lines each item takes.
func (d TaskDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d TaskDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d TaskDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d TaskDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ti, ok := item.(TaskItem)
	if !ok {
		return
	}
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}

	line := renderLine(ti.Task, now)
	if index == m.Index() {
		line = selectedItemStyle.Render(line)
	} else {
		line = listItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// renderLine draws the row text for t without selection styling.
func renderLine(t model.Task, now time.Time) string {
	prefix := "○"
	if t.IsCompleted() {
		prefix = "✓"
	}

	statusBadge := theme.StatusStyle(t.Status).Render(string(t.Status))
	priBadge := theme.PriorityStyle(t.Priority).Render(priorityLabel(t.Priority))

	assignee := ""
	if t.AssignedTo != nil {
		assignee = lipgloss.NewStyle().
			Foreground(theme.ColorMagenta).
			Render(" @" + t.AssignedTo.DisplayName())
	}

	due := ""
	if t.DueDate != nil {
		if t.IsOverdue(now) {
			due = theme.OverdueStyle.Render(" " + t.DueDate.Format("Jan 02") + " OVERDUE")
		} else {
			due = theme.DueDateStyle.Render(" " + t.DueDate.Format("Jan 02"))
		}
	}

	updated := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(t.UpdatedAt, now))

	line := fmt.Sprintf("%s %s %s %s%s%s  %s",
		prefix, priBadge, statusBadge, t.Title, assignee, due, updated)

	if t.IsCompleted() {
		line = theme.DimmedStyle.Render(line)
	}
	return line
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}

// priorityLabel returns a short label for the given priority level.
func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityUrgent:
		return "P1"
	case model.PriorityHigh:
		return "P2"
	case model.PriorityMedium:
		return "P3"
	case model.PriorityLow:
		return "P4"
	default:
		return "P?"
	}
}
