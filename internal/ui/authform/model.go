// Package authform is the sign-in and registration screen.
package authform

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

// Mode selects between signing in and creating an account.
type Mode string

const (
	ModeLogin    Mode = "login"
	ModeRegister Mode = "register"
)

// LoginMsg is dispatched when the sign-in form is submitted.
type LoginMsg struct {
	Email    string
	Password string
}

// RegisterMsg is dispatched when the registration form is submitted.
type RegisterMsg struct {
	Email    string
	Name     string
	Password string
}

type formBindings struct {
	mode     Mode
	email    string
	name     string
	password string
}

// Model is the Bubble Tea model for the auth screen.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	errMsg string
	busy   bool
	width  int
	height int
}

// New creates an auth form in login mode.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{mode: ModeLogin},
		width:  width,
		height: height,
	}
}

// Start (re)builds the form, keeping the email and mode but not the password.
func (m *Model) Start() tea.Cmd {
	m.fb.password = ""
	m.busy = false
	m.form = m.buildForm()
	return m.form.Init()
}

// SetError records a failed attempt and rebuilds the form.
func (m *Model) SetError(msg string) tea.Cmd {
	m.errMsg = msg
	return m.Start()
}

// SetBusy marks a request as in flight.
func (m *Model) SetBusy(busy bool) {
	m.busy = busy
}

// Update handles messages for the auth form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.busy {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.errMsg = ""
		m.busy = true
		return m, m.handleSubmit()
	case huh.StateAborted:
		return m, tea.Quit
	}
	return m, cmd
}

func (m Model) handleSubmit() tea.Cmd {
	email := strings.TrimSpace(m.fb.email)
	password := m.fb.password
	if m.fb.mode == ModeRegister {
		name := strings.TrimSpace(m.fb.name)
		return func() tea.Msg { return RegisterMsg{Email: email, Name: name, Password: password} }
	}
	return func() tea.Msg { return LoginMsg{Email: email, Password: password} }
}

// View renders the auth form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := "Sign in"
	if m.fb.mode == ModeRegister {
		title = "Create account"
	}
	content := titleStyle.Render(title) + "\n"
	if m.errMsg != "" {
		content += theme.ErrorStyle.Render(m.errMsg) + "\n\n"
	}
	if m.busy {
		content += theme.HelpStyle.Render("Working...")
	} else {
		content += m.form.View()
	}

	return theme.PanelStyle.
		Width(min(m.width-4, 72)).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[Mode]().
				Title("Account").
				Options(
					huh.NewOption("Sign in", ModeLogin),
					huh.NewOption("Create account", ModeRegister),
				).
				Value(&m.fb.mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&m.fb.email).
				Validate(func(s string) error {
					return fieldError(model.ValidateCredentials(s, m.fb.password), "email")
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(m.validatePassword),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&m.fb.name).
				Validate(func(s string) error {
					return fieldError(model.ValidateRegistration(m.fb.email, s, m.fb.password), "name")
				}),
		).WithHideFunc(func() bool { return m.fb.mode != ModeRegister }),
	).WithWidth(min(max(m.width-8, 40), 68))
}

func (m *Model) validatePassword(s string) error {
	if m.fb.mode == ModeRegister {
		return fieldError(model.ValidateRegistration(m.fb.email, m.fb.name, s), "password")
	}
	return fieldError(model.ValidateCredentials(m.fb.email, s), "password")
}

// fieldError narrows a form-level validation error to one field.
func fieldError(err error, field string) error {
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	if msg := ve.Field(field); msg != "" {
		return errors.New(msg)
	}
	return nil
}
