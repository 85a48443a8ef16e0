package model

import "time"

// Severity tags a notification for display styling.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is an ephemeral, locally rendered message (a toast). It is
// never persisted and disappears after a fixed display window.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Severity selects the display style.
	Severity Severity `json:"severity"`

	// CreatedAt is when this notification was raised.
	CreatedAt time.Time `json:"created_at"`
}
