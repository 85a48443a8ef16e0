package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

// MaxToasts is the number of notifications shown at once.
const MaxToasts = 3

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
	ToastHeight     int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
		ToastHeight:     MaxToasts,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header, toast area and status bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.ToastHeight-l.StatusBarHeight, 0)
}

// RenderHeader renders the top header bar with a title and the
// connectivity indicator.
func (l Layout) RenderHeader(title string, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderToasts renders the newest notifications, one per line, padded to
// the reserved toast area so the content does not jump.
func (l Layout) RenderToasts(notes []model.Notification) string {
	if len(notes) > l.ToastHeight {
		notes = notes[len(notes)-l.ToastHeight:]
	}
	lines := make([]string, 0, l.ToastHeight)
	for _, n := range notes {
		lines = append(lines, theme.ToastStyle(n.Severity).
			MaxWidth(l.Width).
			Render(toastIcon(n.Severity)+" "+n.Message))
	}
	for len(lines) < l.ToastHeight {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func toastIcon(s model.Severity) string {
	switch s {
	case model.SeveritySuccess:
		return "✓"
	case model.SeverityWarning:
		return "!"
	case model.SeverityError:
		return "✗"
	default:
		return "•"
	}
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, toasts and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	toasts string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		toasts,
		statusBar,
	)
}
