package channel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nhle/taskboard/internal/model"
)

// Event names carried on the wire.
const (
	// Outbound only.
	EventUserJoin     = "user-join"
	EventTaskAssigned = "task-assigned"

	// Outbound and inbound.
	EventTaskUpdated = "task-updated"
	EventTaskCreated = "task-created"
	EventTaskDeleted = "task-deleted"

	// Inbound only.
	EventAssignmentNotification = "assignment-notification"

	// Transport-level, raised locally on (re)connect and on connection loss.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Frame is a single JSON text message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Assignment is the payload of an outbound task-assigned event.
type Assignment struct {
	AssignedToID string `json:"assignedToId"`
	TaskTitle    string `json:"taskTitle"`
	TaskID       string `json:"taskId"`
}

// AssignmentNotice is the payload of an inbound assignment-notification.
// The server's shape is loose; unknown fields are ignored.
type AssignmentNotice struct {
	TaskID     string `json:"taskId"`
	TaskTitle  string `json:"taskTitle"`
	Message    string `json:"message"`
	AssignedBy string `json:"assignedBy"`
}

// Text returns the notice as a display line.
func (n AssignmentNotice) Text() string {
	if n.TaskTitle != "" {
		return fmt.Sprintf("You have been assigned: %s", n.TaskTitle)
	}
	if n.Message != "" {
		return n.Message
	}
	return "You have been assigned a task"
}

// DecodeTask decodes a task-created/task-updated payload.
func DecodeTask(data json.RawMessage) (model.Task, error) {
	var t model.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return model.Task{}, fmt.Errorf("decoding task payload: %w", err)
	}
	if t.ID == "" {
		return model.Task{}, fmt.Errorf("decoding task payload: missing id")
	}
	return t, nil
}

// DecodeTaskID decodes a task-deleted payload. Both a bare string and an
// object carrying an id are accepted.
func DecodeTaskID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil && id != "" {
		return id, nil
	}
	var obj struct {
		ID     string `json:"_id"`
		AltID  string `json:"id"`
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("decoding task id payload: %w", err)
	}
	if obj.ID != "" {
		return obj.ID, nil
	}
	if obj.AltID != "" {
		return obj.AltID, nil
	}
	if obj.TaskID != "" {
		return obj.TaskID, nil
	}
	return "", fmt.Errorf("decoding task id payload: missing id")
}

// URLFromBase derives the socket endpoint from the REST base address:
// http becomes ws, https becomes wss, and /ws is appended to the path.
func URLFromBase(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
