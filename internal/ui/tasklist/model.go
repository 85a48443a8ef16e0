package tasklist

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/keys"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/taskview"
	"github.com/nhle/taskboard/internal/theme"
)

// QueryChangedMsg is sent when the user changes the filter tab or the
// listing parameters. The receiver is expected to reload.
type QueryChangedMsg struct {
	Query taskview.Query
}

// SelectedTaskMsg is sent when a user opens a task.
type SelectedTaskMsg struct {
	Task model.Task
}

// sortModes defines the server-side sort fields cycled by Tab. The empty
// mode leaves ordering to the service.
var sortModes = []string{
	"",
	"createdAt",
	"dueDate",
	"priority",
	"status",
	"title",
}

// Model is the main task list view component.
type Model struct {
	list        list.Model
	keys        *keys.KeyMap
	query       taskview.Query
	tasks       []model.Task
	sortIndex   int
	searchMode  bool
	search      string
	searchInput textinput.Model
	now         func() time.Time
	width       int
	height      int
}

// New creates a new task list model.
func New(k *keys.KeyMap, width, height int) Model {
	now := time.Now
	l := list.New([]list.Item{}, TaskDelegate{Now: now}, width, height-2)
	l.Title = "Tasks"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search titles..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		keys:        k,
		query:       taskview.Query{Filter: taskview.FilterAll},
		searchInput: si,
		now:         now,
		width:       width,
		height:      height,
	}
}

// Query returns the query the list is currently showing.
func (m Model) Query() taskview.Query { return m.query }

// SetQuery replaces the current query without emitting a change.
func (m *Model) SetQuery(q taskview.Query) {
	if q.Filter == "" {
		q.Filter = taskview.FilterAll
	}
	m.query = q
	m.sortIndex = 0
	for i, s := range sortModes {
		if s == q.SortBy {
			m.sortIndex = i
		}
	}
}

// SetTasks replaces the rows, applying the local title search.
func (m *Model) SetTasks(tasks []model.Task) tea.Cmd {
	m.tasks = tasks
	return m.refreshItems()
}

func (m *Model) refreshItems() tea.Cmd {
	needle := strings.ToLower(m.search)
	items := make([]list.Item, 0, len(m.tasks))
	for _, t := range m.tasks {
		if needle != "" && !strings.Contains(strings.ToLower(t.Title), needle) {
			continue
		}
		items = append(items, TaskItem{Task: t})
	}
	return m.list.SetItems(items)
}

// SelectedTask returns the task under the cursor.
func (m Model) SelectedTask() (model.Task, bool) {
	item, ok := m.list.SelectedItem().(TaskItem)
	if !ok {
		return model.Task{}, false
	}
	return item.Task, true
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool { return m.searchMode }

// Update handles messages for the task list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.search = strings.TrimSpace(m.searchInput.Value())
		m.searchInput.Blur()
		return m, m.refreshItems()

	case "esc":
		m.searchMode = false
		m.search = ""
		m.searchInput.Reset()
		m.searchInput.Blur()
		return m, m.refreshItems()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		t, ok := m.SelectedTask()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return SelectedTaskMsg{Task: t} }

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.FilterAll):
		return m.withFilter(taskview.FilterAll)
	case key.Matches(msg, m.keys.FilterAssigned):
		return m.withFilter(taskview.FilterAssigned)
	case key.Matches(msg, m.keys.FilterCreated):
		return m.withFilter(taskview.FilterCreated)
	case key.Matches(msg, m.keys.FilterOverdue):
		return m.withFilter(taskview.FilterOverdue)

	case key.Matches(msg, m.keys.CycleStatus):
		if m.query.Filter != taskview.FilterAll {
			return m, nil
		}
		m.query.Status = nextStatus(m.query.Status)
		return m, m.changed()

	case key.Matches(msg, m.keys.CyclePriority):
		if m.query.Filter != taskview.FilterAll {
			return m, nil
		}
		m.query.Priority = nextPriority(m.query.Priority)
		return m, m.changed()

	case key.Matches(msg, m.keys.CycleSort):
		if m.query.Filter != taskview.FilterAll {
			return m, nil
		}
		m.sortIndex = (m.sortIndex + 1) % len(sortModes)
		m.query.SortBy = sortModes[m.sortIndex]
		if m.query.SortBy == "" {
			m.query.SortOrder = ""
		} else if m.query.SortOrder == "" {
			m.query.SortOrder = "asc"
		}
		return m, m.changed()

	case key.Matches(msg, m.keys.ToggleOrder):
		if m.query.Filter != taskview.FilterAll || m.query.SortBy == "" {
			return m, nil
		}
		if m.query.SortOrder == "desc" {
			m.query.SortOrder = "asc"
		} else {
			m.query.SortOrder = "desc"
		}
		return m, m.changed()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) withFilter(f taskview.Filter) (Model, tea.Cmd) {
	if m.query.Filter == f {
		return m, nil
	}
	m.query = taskview.Query{Filter: f}
	m.sortIndex = 0
	return m, m.changed()
}

func (m Model) changed() tea.Cmd {
	q := m.query
	return func() tea.Msg { return QueryChangedMsg{Query: q} }
}

// nextStatus cycles "" → each status in workflow order → "".
func nextStatus(s model.Status) model.Status {
	all := model.AllStatuses()
	if s == "" {
		return all[0]
	}
	for i, known := range all {
		if known == s && i+1 < len(all) {
			return all[i+1]
		}
	}
	return ""
}

func nextPriority(p model.Priority) model.Priority {
	all := model.AllPriorities()
	if p == "" {
		return all[0]
	}
	for i, known := range all {
		if known == p && i+1 < len(all) {
			return all[i+1]
		}
	}
	return ""
}

// FilterSummary describes the active listing parameters, or "" when the
// service defaults apply.
func (m Model) FilterSummary() string {
	var parts []string
	if m.query.Status != "" {
		parts = append(parts, "status: "+string(m.query.Status))
	}
	if m.query.Priority != "" {
		parts = append(parts, "priority: "+string(m.query.Priority))
	}
	if m.query.SortBy != "" {
		parts = append(parts, fmt.Sprintf("sort: %s %s", m.query.SortBy, m.query.SortOrder))
	}
	if m.search != "" {
		parts = append(parts, fmt.Sprintf("search: %q", m.search))
	}
	return strings.Join(parts, " | ")
}

// View renders the task list view.
func (m Model) View() string {
	tabs := m.renderTabs()

	var body string
	switch {
	case m.searchMode:
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		body = lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	case len(m.list.Items()) == 0:
		body = m.renderEmptyState()
	default:
		body = m.list.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, tabs, body)
}

var tabLabels = map[taskview.Filter]string{
	taskview.FilterAll:      "1 All",
	taskview.FilterAssigned: "2 Assigned to me",
	taskview.FilterCreated:  "3 Created by me",
	taskview.FilterOverdue:  "4 Overdue",
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(taskview.Filters()))
	for _, f := range taskview.Filters() {
		style := theme.TabStyle
		if f == m.query.Filter {
			style = theme.ActiveTabStyle
		}
		tabs = append(tabs, style.Render(tabLabels[f]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// renderEmptyState shows guidance text when no tasks are available.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height - 2).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.FilterSummary() != "" || m.query.Filter != taskview.FilterAll {
		return style.Render("No matching tasks.\nTry another tab or clear the filters.")
	}
	return style.Render("No tasks yet.\n\nPress n to create one.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
