package authform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskboard/internal/model"
)

func TestSubmitLogin(t *testing.T) {
	m := New(80, 24)
	m.Start()
	m.fb.email = "  ada@example.com "
	m.fb.password = "secret1"

	msg := m.handleSubmit()()
	login, ok := msg.(LoginMsg)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", login.Email)
	assert.Equal(t, "secret1", login.Password)
}

func TestSubmitRegister(t *testing.T) {
	m := New(80, 24)
	m.Start()
	m.fb.mode = ModeRegister
	m.fb.email = "bob@example.com"
	m.fb.name = " Bob "
	m.fb.password = "hunter22"

	msg := m.handleSubmit()()
	reg, ok := msg.(RegisterMsg)
	require.True(t, ok)
	assert.Equal(t, "Bob", reg.Name)
}

func TestSetErrorKeepsEmailDropsPassword(t *testing.T) {
	m := New(80, 24)
	m.Start()
	m.fb.email = "ada@example.com"
	m.fb.password = "wrong"
	m.SetBusy(true)

	m.SetError("Invalid email or password")
	assert.Equal(t, "ada@example.com", m.fb.email)
	assert.Empty(t, m.fb.password)
	assert.False(t, m.busy)
	assert.Contains(t, m.View(), "Invalid email or password")
}

func TestPasswordRuleDependsOnMode(t *testing.T) {
	m := New(80, 24)
	m.fb.email = "ada@example.com"

	assert.NoError(t, m.validatePassword("abc"))
	m.fb.mode = ModeRegister
	m.fb.name = "Ada"
	assert.Error(t, m.validatePassword("abc"))
	assert.NoError(t, m.validatePassword("abcdef"))
}

func TestFieldError(t *testing.T) {
	err := model.ValidateRegistration("", "", "")
	assert.EqualError(t, fieldError(err, "email"), "email is required")
	assert.NoError(t, fieldError(model.ValidateCredentials("a@b.co", ""), "email"))
	assert.NoError(t, fieldError(nil, "email"))
}
