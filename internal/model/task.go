package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency level of a task. The set is closed and ordered
// from lowest to highest.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// DefaultPriority is applied to new tasks that do not specify one.
const DefaultPriority = PriorityMedium

// AllPriorities returns every priority in ascending order.
func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Rank returns the 1-based position of p in the ordered set, or 0 if p is unknown.
func (p Priority) Rank() int {
	for i, known := range AllPriorities() {
		if p == known {
			return i + 1
		}
	}
	return 0
}

// ParsePriority matches s case-insensitively against the known priorities.
func ParsePriority(s string) (Priority, error) {
	for _, p := range AllPriorities() {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Status is the workflow state of a task. The set is closed and ordered.
type Status string

const (
	StatusTodo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusReview     Status = "Review"
	StatusCompleted  Status = "Completed"
)

// DefaultStatus is applied to new tasks that do not specify one.
const DefaultStatus = StatusTodo

// AllStatuses returns every status in workflow order.
func AllStatuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusReview, StatusCompleted}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.Rank() > 0
}

// Rank returns the 1-based position of s in workflow order, or 0 if s is unknown.
func (s Status) Rank() int {
	for i, known := range AllStatuses() {
		if s == known {
			return i + 1
		}
	}
	return 0
}

// ParseStatus matches s against the known statuses, ignoring case and
// treating '-', '_' and spaces alike ("in_progress" parses as In Progress).
func ParseStatus(s string) (Status, error) {
	norm := normalizeEnum(s)
	for _, st := range AllStatuses() {
		if normalizeEnum(string(st)) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}

// Task is the unit of work tracked by the remote service.
type Task struct {
	// ID is assigned by the remote store at creation and never changes.
	ID string `json:"_id"`

	// Title is the required, human-readable summary (at most TitleMaxLen code points).
	Title string `json:"title,omitempty"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// DueDate is optional; no future-only constraint is enforced.
	DueDate *time.Time `json:"dueDate,omitempty"`

	Priority Priority `json:"priority,omitempty"`
	Status   Status   `json:"status,omitempty"`

	// AssignedTo references the assignee. The service may send either a bare
	// identifier or an expanded user object.
	AssignedTo *User `json:"assignedTo,omitempty"`

	// CreatedBy references the creator; set at creation and immutable.
	CreatedBy *User `json:"createdBy,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`

	// Version is a monotonic per-task counter when the service provides one.
	// Zero means unknown.
	Version int64 `json:"version,omitempty"`
}

// UnmarshalJSON accepts the identifier under "_id" or "id". Fields missing
// from data keep their current values, so decoding onto an existing task
// merges.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	p := struct {
		plain
		AltID string `json:"id"`
	}{plain: plain(*t)}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Task(p.plain)
	if t.ID == "" {
		t.ID = p.AltID
	}
	return nil
}

// FullJSON encodes t with every mutable field present. A cleared
// description, due date or assignee is written as "" or null, so a merge on
// the receiving side clears it too.
func (t Task) FullJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string     `json:"_id"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		DueDate     *time.Time `json:"dueDate"`
		Priority    Priority   `json:"priority,omitempty"`
		Status      Status     `json:"status,omitempty"`
		AssignedTo  *User      `json:"assignedTo"`
		CreatedBy   *User      `json:"createdBy,omitempty"`
		CreatedAt   time.Time  `json:"createdAt,omitzero"`
		UpdatedAt   time.Time  `json:"updatedAt,omitzero"`
		Version     int64      `json:"version,omitempty"`
	}{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Status:      t.Status,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Version:     t.Version,
	})
}

// IsOverdue reports whether the task has a due date before now and is not
// completed. It is a point-in-time predicate evaluated against the caller's clock.
func (t Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Status != StatusCompleted
}

// IsCompleted reports whether the task is in the final workflow state.
func (t Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// AssigneeID returns the assignee's identifier, or "" when unassigned.
func (t Task) AssigneeID() string {
	if t.AssignedTo == nil {
		return ""
	}
	return t.AssignedTo.ID
}

// CreatorID returns the creator's identifier, or "" when unknown.
func (t Task) CreatorID() string {
	if t.CreatedBy == nil {
		return ""
	}
	return t.CreatedBy.ID
}

// IsAssignedTo reports whether userID is the task's assignee.
func (t Task) IsAssignedTo(userID string) bool {
	return userID != "" && t.AssigneeID() == userID
}

// TaskInput carries the fields of a task to be created.
type TaskInput struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	Priority     Priority   `json:"priority,omitempty"`
	Status       Status     `json:"status,omitempty"`
	AssignedToID string     `json:"assignedTo,omitempty"`
}

// Normalize trims the title and fills in the default priority and status.
func (in TaskInput) Normalize() TaskInput {
	in.Title = strings.TrimSpace(in.Title)
	if in.Priority == "" {
		in.Priority = DefaultPriority
	}
	if in.Status == "" {
		in.Status = DefaultStatus
	}
	return in
}

// TaskPatch carries a partial update. Nil fields are left untouched by the
// service; ClearDueDate and ClearAssignee send explicit nulls.
type TaskPatch struct {
	Title         *string
	Description   *string
	DueDate       *time.Time
	ClearDueDate  bool
	Priority      *Priority
	Status        *Status
	AssignedToID  *string
	ClearAssignee bool
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil &&
		!p.ClearDueDate && p.Priority == nil && p.Status == nil &&
		p.AssignedToID == nil && !p.ClearAssignee
}

// MarshalJSON encodes only the fields the patch sets.
func (p TaskPatch) MarshalJSON() ([]byte, error) {
	body := make(map[string]any)
	if p.Title != nil {
		body["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	switch {
	case p.ClearDueDate:
		body["dueDate"] = nil
	case p.DueDate != nil:
		body["dueDate"] = p.DueDate.UTC()
	}
	if p.Priority != nil {
		body["priority"] = *p.Priority
	}
	if p.Status != nil {
		body["status"] = *p.Status
	}
	switch {
	case p.ClearAssignee:
		body["assignedTo"] = nil
	case p.AssignedToID != nil:
		body["assignedTo"] = *p.AssignedToID
	}
	return json.Marshal(body)
}

// StringPtr returns a pointer to s. Convenience for building patches.
func StringPtr(s string) *string { return &s }

// PriorityPtr returns a pointer to p.
func PriorityPtr(p Priority) *Priority { return &p }

// StatusPtr returns a pointer to s.
func StatusPtr(s Status) *Status { return &s }
