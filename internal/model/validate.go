package model

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"unicode/utf8"
)

// TitleMaxLen is the maximum number of code points in a task title.
const TitleMaxLen = 100

// PasswordMinLen is the minimum password length accepted at registration.
const PasswordMinLen = 6

// ValidationError reports field-scoped problems found before any remote call.
type ValidationError struct {
	// Fields maps a field name to its message.
	Fields map[string]string
}

// Error lists the field messages in a stable order.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message for name, or "".
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.Fields[name]
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// orNil returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidationError reports whether err (or any error in its chain) is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateTitle checks the required, length-bounded title.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	switch {
	case title == "":
		return errors.New("title is required")
	case utf8.RuneCountInString(title) > TitleMaxLen:
		return fmt.Errorf("title must be at most %d characters", TitleMaxLen)
	}
	return nil
}

// ValidateTaskInput checks a create request.
func ValidateTaskInput(in TaskInput) error {
	ve := &ValidationError{}
	if err := ValidateTitle(in.Title); err != nil {
		ve.add("title", err.Error())
	}
	if in.Priority != "" && !in.Priority.Valid() {
		ve.add("priority", fmt.Sprintf("priority must be one of %s", joinPriorities()))
	}
	if in.Status != "" && !in.Status.Valid() {
		ve.add("status", fmt.Sprintf("status must be one of %s", joinStatuses()))
	}
	return ve.orNil()
}

// ValidatePatch checks an update request. Only the fields the patch sets are checked.
func ValidatePatch(p TaskPatch) error {
	ve := &ValidationError{}
	if p.Title != nil {
		if err := ValidateTitle(*p.Title); err != nil {
			ve.add("title", err.Error())
		}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		ve.add("priority", fmt.Sprintf("priority must be one of %s", joinPriorities()))
	}
	if p.Status != nil && !p.Status.Valid() {
		ve.add("status", fmt.Sprintf("status must be one of %s", joinStatuses()))
	}
	if p.ClearDueDate && p.DueDate != nil {
		ve.add("dueDate", "cannot both set and clear the due date")
	}
	if p.ClearAssignee && p.AssignedToID != nil {
		ve.add("assignedTo", "cannot both set and clear the assignee")
	}
	return ve.orNil()
}

// ValidateCredentials checks a login request.
func ValidateCredentials(email, password string) error {
	ve := &ValidationError{}
	validateEmail(ve, email)
	if password == "" {
		ve.add("password", "password is required")
	}
	return ve.orNil()
}

// ValidateRegistration checks a registration request.
func ValidateRegistration(email, name, password string) error {
	ve := &ValidationError{}
	validateEmail(ve, email)
	if strings.TrimSpace(name) == "" {
		ve.add("name", "name is required")
	}
	if utf8.RuneCountInString(password) < PasswordMinLen {
		ve.add("password", fmt.Sprintf("password must be at least %d characters", PasswordMinLen))
	}
	return ve.orNil()
}

func validateEmail(ve *ValidationError, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		ve.add("email", "email is required")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		ve.add("email", "invalid email address")
	}
}

func joinPriorities() string {
	names := make([]string, 0, 4)
	for _, p := range AllPriorities() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func joinStatuses() string {
	names := make([]string, 0, 4)
	for _, s := range AllStatuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
