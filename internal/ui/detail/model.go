package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/keys"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

const timeLayout = "2006-01-02 15:04"

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Action names a change requested from the detail view.
type Action string

const (
	ActionEdit     Action = "edit"
	ActionComplete Action = "complete"
	ActionAdvance  Action = "advance"
	ActionDelete   Action = "delete"
)

// ActionMsg signals the parent to execute an action on the shown task.
type ActionMsg struct {
	Action Action
	Task   model.Task
}

// Model is the task detail view component.
type Model struct {
	task     *model.Task
	viewport viewport.Model
	keys     *keys.KeyMap
	now      func() time.Time
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		now:      time.Now,
		width:    width,
		height:   height,
	}
}

// Task returns the task being shown.
func (m Model) Task() (model.Task, bool) {
	if m.task == nil {
		return model.Task{}, false
	}
	return *m.task, true
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }
		case key.Matches(msg, m.keys.Edit):
			return m, m.action(ActionEdit)
		case key.Matches(msg, m.keys.Complete):
			if m.task != nil && !m.task.IsCompleted() {
				return m, m.action(ActionComplete)
			}
			return m, nil
		case key.Matches(msg, m.keys.Advance):
			return m, m.action(ActionAdvance)
		case key.Matches(msg, m.keys.Delete):
			return m, m.action(ActionDelete)
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) action(a Action) tea.Cmd {
	if m.task == nil {
		return nil
	}
	t := *m.task
	return func() tea.Msg { return ActionMsg{Action: a, Task: t} }
}

// View renders the detail view.
func (m Model) View() string {
	if m.task == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No task selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.task == nil {
		return ""
	}

	task := m.task
	now := m.now()
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(task.Title))

	badgeLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		theme.StatusStyle(task.Status).Render(string(task.Status)),
		"  ",
		theme.PriorityStyle(task.Priority).Render(string(task.Priority)),
	)
	if task.IsOverdue(now) {
		badgeLine = lipgloss.JoinHorizontal(lipgloss.Top, badgeLine, "  ", theme.OverdueStyle.Render("OVERDUE"))
	}
	sections = append(sections, badgeLine, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(10)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	field := func(label, value string) {
		sections = append(sections, metaStyle.Render(label+":")+" "+valStyle.Render(value))
	}

	if task.AssignedTo != nil {
		field("Assignee", task.AssignedTo.DisplayName())
	} else {
		field("Assignee", "Unassigned")
	}
	if task.CreatedBy != nil {
		field("Creator", task.CreatedBy.DisplayName())
	}
	if task.DueDate != nil {
		due := task.DueDate.Format("2006-01-02")
		if task.IsOverdue(now) {
			due = theme.OverdueStyle.Render(due)
		}
		field("Due", due)
	}
	if !task.CreatedAt.IsZero() {
		field("Created", task.CreatedAt.Local().Format(timeLayout))
	}
	if !task.UpdatedAt.IsZero() {
		field("Updated", task.UpdatedAt.Local().Format(timeLayout))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	descHeaderStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	sections = append(sections, descHeaderStyle.Render("Description"))

	body := task.Description
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No description")
	}
	sections = append(sections, body)

	if task.Version > 0 {
		sections = append(sections, "", theme.DimmedStyle.Render(fmt.Sprintf("revision %d", task.Version)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetTask shows t and scrolls to the top.
func (m *Model) SetTask(t model.Task) {
	m.task = &t
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Refresh re-renders t in place, keeping the scroll position. It is used
// when a live update touches the shown task.
func (m *Model) Refresh(t model.Task) {
	m.task = &t
	m.viewport.SetContent(m.renderContent())
}

// Clear drops the shown task.
func (m *Model) Clear() {
	m.task = nil
	m.viewport.SetContent("")
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(height-2, 0)
	if m.task != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
