package command

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/theme"
)

// CommandMsg is emitted when the user executes a known command.
type CommandMsg string

// Name returns the first word of the command, lower-cased.
func (c CommandMsg) Name() string {
	name, _, _ := strings.Cut(strings.TrimSpace(string(c)), " ")
	return strings.ToLower(name)
}

// Args returns the words after the command name.
func (c CommandMsg) Args() []string {
	fields := strings.Fields(string(c))
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// Spec describes one palette command.
type Spec struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string
}

// Specs lists the commands the palette accepts, in help order.
var Specs = []Spec{
	{Name: "refresh", Aliases: []string{"sync"}, Usage: "refresh", Help: "reload the current listing"},
	{Name: "new", Usage: "new", Help: "create a task"},
	{Name: "all", Usage: "all", Help: "show every task"},
	{Name: "assigned", Usage: "assigned", Help: "tasks assigned to me"},
	{Name: "created", Usage: "created", Help: "tasks I created"},
	{Name: "overdue", Usage: "overdue", Help: "tasks past their due date"},
	{Name: "status", Usage: "status <name>", Help: "only tasks in a status"},
	{Name: "priority", Usage: "priority <name>", Help: "only tasks with a priority"},
	{Name: "sort", Usage: "sort <field> [asc|desc]", Help: "order the listing"},
	{Name: "clear", Usage: "clear", Help: "drop status, priority and sort"},
	{Name: "logout", Usage: "logout", Help: "sign out"},
	{Name: "quit", Aliases: []string{"q"}, Usage: "quit", Help: "exit"},
}

// Lookup returns the command whose name or alias is name.
func Lookup(name string) (Spec, bool) {
	name = strings.ToLower(name)
	for _, s := range Specs {
		if s.Name == name || slices.Contains(s.Aliases, name) {
			return s, true
		}
	}
	return Spec{}, false
}

func suggestions() []string {
	out := make([]string, 0, len(Specs))
	for _, s := range Specs {
		out = append(out, s.Name)
	}
	return out
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	errMsg string
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command, tab completes"
	ti.Prompt = ": "
	ti.Width = width - 6
	ti.ShowSuggestions = true
	ti.SetSuggestions(suggestions())

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette. Unknown commands keep
// the palette open with an inline error.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		c := CommandMsg(line)
		if _, known := Lookup(c.Name()); !known {
			m.errMsg = fmt.Sprintf("Unknown command %q", c.Name())
			return m, nil
		}
		m.input.Reset()
		m.errMsg = ""
		return m, func() tea.Msg { return c }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command Palette")

	parts := []string{title, m.input.View()}
	if m.errMsg != "" {
		parts = append(parts, "", theme.ErrorStyle.Render(m.errMsg))
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus clears the previous input and gives keyboard focus to the palette.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	m.errMsg = ""
	return m.input.Focus()
}
