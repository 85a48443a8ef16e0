package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/keys"
	"github.com/nhle/taskboard/internal/theme"
	"github.com/nhle/taskboard/internal/ui/command"
)

// groupTitles name the rows of keys.KeyMap.FullHelp, in order.
var groupTitles = []string{"Navigation", "General", "Tabs", "Listing", "Tasks"}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	keyStyle     = lipgloss.NewStyle().Foreground(theme.ColorYellow).Width(12)
	descStyle    = lipgloss.NewStyle().Foreground(theme.ColorGray)
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	return Model{
		keys:   keys,
		width:  width,
		height: height,
	}
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay: key bindings by group side by side, then
// the palette commands.
func (m Model) View() string {
	var columns []string
	for i, group := range m.keys.FullHelp() {
		title := ""
		if i < len(groupTitles) {
			title = groupTitles[i]
		}
		columns = append(columns, renderGroup(title, group))
	}
	bindings := wrapColumns(columns, m.width-6)

	var cmds []string
	for _, s := range command.Specs {
		cmds = append(cmds, keyStyle.Width(26).Render(s.Usage)+descStyle.Render(s.Help))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		bindings,
		"",
		sectionStyle.Render("Commands (:)"),
		strings.Join(cmds, "\n"),
	)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(max(m.height-4, 0)).
		Render(content)
}

func renderGroup(title string, bindings []key.Binding) string {
	lines := []string{sectionStyle.Render(title)}
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		lines = append(lines, keyStyle.Render(h.Key)+descStyle.Render(h.Desc))
	}
	return lipgloss.NewStyle().MarginRight(3).Render(strings.Join(lines, "\n"))
}

// wrapColumns lays columns out left to right, starting a new row when the
// next column would not fit in width.
func wrapColumns(columns []string, width int) string {
	var rows []string
	var row []string
	rowWidth := 0
	for _, c := range columns {
		w := lipgloss.Width(c)
		if len(row) > 0 && rowWidth+w > width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, rowWidth = nil, 0
		}
		row = append(row, c)
		rowWidth += w
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return strings.Join(rows, "\n\n")
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
