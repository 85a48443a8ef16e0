package taskform

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

const dateLayout = "2006-01-02"

// CreateMsg is dispatched when the create form is submitted.
type CreateMsg struct {
	Input model.TaskInput
}

// UpdateMsg is dispatched when the edit form is submitted. Patch holds only
// the fields the user changed and may be empty.
type UpdateMsg struct {
	ID    string
	Patch model.TaskPatch
}

// CancelMsg is dispatched when the user cancels the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title       string
	description string
	priority    model.Priority
	status      model.Status
	dueDate     string
	assigneeID  string
}

// Model is the Bubble Tea model for the task create/edit form.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	original model.Task
	editMode bool
	users    []model.User
	errMsg   string
	width    int
	height   int
}

// New creates a new task form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{priority: model.DefaultPriority, status: model.DefaultStatus},
		width:  width,
		height: height,
	}
}

// SetUsers sets the assignee choices.
func (m *Model) SetUsers(users []model.User) {
	m.users = users
}

// SetError shows a submit failure above the form.
func (m *Model) SetError(msg string) {
	m.errMsg = msg
}

// StartCreate initializes the form for a new task.
func (m *Model) StartCreate() tea.Cmd {
	m.editMode = false
	m.original = model.Task{}
	m.errMsg = ""
	*m.fb = formBindings{priority: model.DefaultPriority, status: model.DefaultStatus}
	m.form = m.buildForm()
	return m.form.Init()
}

// StartEdit initializes the form with t's current values.
func (m *Model) StartEdit(t model.Task) tea.Cmd {
	m.editMode = true
	m.original = t
	m.errMsg = ""
	*m.fb = formBindings{
		title:       t.Title,
		description: t.Description,
		priority:    t.Priority,
		status:      t.Status,
		assigneeID:  t.AssigneeID(),
	}
	if t.DueDate != nil {
		m.fb.dueDate = t.DueDate.Format(dateLayout)
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Resume rebuilds the form with the values last entered, after a failed
// submit.
func (m *Model) Resume() tea.Cmd {
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the task form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the task form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Task"
	if m.editMode {
		titleText = "Edit Task"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n"
	if m.errMsg != "" {
		content += theme.ErrorStyle.Render(m.errMsg) + "\n\n"
	}
	content += m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	priorities := make([]huh.Option[model.Priority], 0, len(model.AllPriorities()))
	for _, p := range model.AllPriorities() {
		priorities = append(priorities, huh.NewOption(string(p), p))
	}
	statuses := make([]huh.Option[model.Status], 0, len(model.AllStatuses()))
	for _, s := range model.AllStatuses() {
		statuses = append(statuses, huh.NewOption(string(s), s))
	}

	fields := []huh.Field{
		huh.NewInput().
			Title("Title").
			Placeholder("What needs to be done?").
			CharLimit(model.TitleMaxLen).
			Value(&m.fb.title).
			Validate(model.ValidateTitle),
		huh.NewText().
			Title("Description").
			Placeholder("Optional details...").
			Value(&m.fb.description),
		huh.NewSelect[model.Priority]().
			Title("Priority").
			Options(priorities...).
			Value(&m.fb.priority),
		huh.NewSelect[model.Status]().
			Title("Status").
			Options(statuses...).
			Value(&m.fb.status),
		huh.NewInput().
			Title("Due Date").
			Placeholder("YYYY-MM-DD (optional)").
			Value(&m.fb.dueDate).
			Validate(validateOptionalDate),
	}
	if f := m.assigneeField(); f != nil {
		fields = append(fields, f)
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m *Model) assigneeField() huh.Field {
	if len(m.users) == 0 {
		return nil
	}
	opts := []huh.Option[string]{huh.NewOption("Unassigned", "")}
	for _, u := range m.users {
		opts = append(opts, huh.NewOption(u.DisplayName(), u.ID))
	}
	return huh.NewSelect[string]().
		Title("Assignee").
		Options(opts...).
		Value(&m.fb.assigneeID)
}

func (m Model) handleSubmit() tea.Cmd {
	due := parseDate(m.fb.dueDate)

	if !m.editMode {
		in := model.TaskInput{
			Title:        m.fb.title,
			Description:  m.fb.description,
			DueDate:      due,
			Priority:     m.fb.priority,
			Status:       m.fb.status,
			AssignedToID: m.fb.assigneeID,
		}
		return func() tea.Msg { return CreateMsg{Input: in} }
	}

	id := m.original.ID
	patch := diff(m.original, *m.fb, due)
	return func() tea.Msg { return UpdateMsg{ID: id, Patch: patch} }
}

// diff builds a patch carrying only the fields that differ from orig.
func diff(orig model.Task, fb formBindings, due *time.Time) model.TaskPatch {
	var p model.TaskPatch

	if title := strings.TrimSpace(fb.title); title != orig.Title {
		p.Title = &title
	}
	if fb.description != orig.Description {
		d := fb.description
		p.Description = &d
	}
	if fb.priority != orig.Priority {
		pr := fb.priority
		p.Priority = &pr
	}
	if fb.status != orig.Status {
		st := fb.status
		p.Status = &st
	}

	switch {
	case due == nil && orig.DueDate != nil:
		p.ClearDueDate = true
	case due != nil && (orig.DueDate == nil || !sameDay(*due, *orig.DueDate)):
		p.DueDate = due
	}

	switch {
	case fb.assigneeID == "" && orig.AssigneeID() != "":
		p.ClearAssignee = true
	case fb.assigneeID != "" && fb.assigneeID != orig.AssigneeID():
		a := fb.assigneeID
		p.AssignedToID = &a
	}
	return p
}

func sameDay(a, b time.Time) bool {
	return a.Format(dateLayout) == b.Format(dateLayout)
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-6, 10)
}

func validateOptionalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}
