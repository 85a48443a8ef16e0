package api

import (
	"context"
	"net/http"

	"github.com/nhle/taskboard/internal/model"
)

// GetCurrentUser returns the authenticated user's profile. A 401 means no
// session is established.
func (c *Client) GetCurrentUser(ctx context.Context) (*model.User, error) {
	res := envelope[model.User]{key: "user"}
	if err := c.get(ctx, "/api/users/me", nil, &res); err != nil {
		return nil, err
	}
	return &res.value, nil
}

// UpdateProfile changes the current user's profile and returns it.
func (c *Client) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	res := envelope[model.User]{key: "user"}
	if err := c.send(ctx, http.MethodPut, "/api/users/me", upd, &res); err != nil {
		return nil, err
	}
	return &res.value, nil
}

// ListUsers returns every user, for assignment pickers.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	res := envelope[[]model.User]{key: "users"}
	if err := c.get(ctx, "/api/users", nil, &res); err != nil {
		return nil, err
	}
	if res.value == nil {
		return []model.User{}, nil
	}
	return res.value, nil
}
