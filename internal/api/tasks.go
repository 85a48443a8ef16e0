package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nhle/taskboard/internal/model"
)

// Sort orders accepted by the service.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// TaskQuery holds the optional server-side filters for ListTasks.
// Empty fields are omitted; ordering without SortBy is the server's default.
type TaskQuery struct {
	Status    model.Status
	Priority  model.Priority
	SortBy    string
	SortOrder string
}

// Values encodes the query string.
func (q TaskQuery) Values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Priority != "" {
		v.Set("priority", string(q.Priority))
	}
	if q.SortBy != "" {
		v.Set("sortBy", q.SortBy)
	}
	if q.SortOrder != "" {
		v.Set("sortOrder", q.SortOrder)
	}
	return v
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

// ListTasks returns tasks matching q in the order the server provides.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error) {
	return c.listTasks(ctx, "/api/tasks", q.Values())
}

// ListAssignedToMe returns tasks assigned to the current user.
func (c *Client) ListAssignedToMe(ctx context.Context) ([]model.Task, error) {
	return c.listTasks(ctx, "/api/tasks/dashboard/assigned", nil)
}

// ListCreatedByMe returns tasks created by the current user.
func (c *Client) ListCreatedByMe(ctx context.Context) ([]model.Task, error) {
	return c.listTasks(ctx, "/api/tasks/dashboard/created", nil)
}

// ListOverdue returns tasks the server considers overdue.
func (c *Client) ListOverdue(ctx context.Context) ([]model.Task, error) {
	return c.listTasks(ctx, "/api/tasks/dashboard/overdue", nil)
}

func (c *Client) listTasks(ctx context.Context, path string, query url.Values) ([]model.Task, error) {
	res := envelope[[]model.Task]{key: "tasks"}
	if err := c.get(ctx, path, query, &res); err != nil {
		return nil, err
	}
	if res.value == nil {
		return []model.Task{}, nil
	}
	return res.value, nil
}

// GetTask returns a single task. A missing task yields a RemoteError for
// which IsNotFound is true.
func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	res := envelope[model.Task]{key: "task"}
	if err := c.get(ctx, taskPath(id), nil, &res); err != nil {
		return nil, err
	}
	return &res.value, nil
}

// CreateTask creates a task and returns it with its assigned identifier.
func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	res := envelope[model.Task]{key: "task"}
	if err := c.send(ctx, http.MethodPost, "/api/tasks", in.Normalize(), &res); err != nil {
		return nil, err
	}
	if res.value.ID == "" {
		return nil, fmt.Errorf("creating task: response has no task id")
	}
	return &res.value, nil
}

// UpdateTask applies a partial update and returns the full updated task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	res := envelope[model.Task]{key: "task"}
	if err := c.send(ctx, http.MethodPut, taskPath(id), patch, &res); err != nil {
		return nil, err
	}
	if res.value.ID == "" {
		res.value.ID = id
	}
	return &res.value, nil
}

// DeleteTask removes a task. Any response body is ignored.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, taskPath(id), nil, nil)
}
