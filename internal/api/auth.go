package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nhle/taskboard/internal/model"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *model.User
	Token string
}

type authResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// UnmarshalJSON accepts {"user": {...}, "token": "..."} or a bare user object.
func (r *authResponse) UnmarshalJSON(data []byte) error {
	type plain authResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.User == nil {
		var u model.User
		if json.Unmarshal(data, &u) == nil && u.ID != "" {
			p.User = &u
		}
	}
	*r = authResponse(p)
	return nil
}

// Register creates an account. Success is any 2xx (the service uses 201).
func (c *Client) Register(ctx context.Context, email, name, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "name": name, "password": password}
	return c.authenticate(ctx, "/api/auth/register", body)
}

// Login establishes a session. The service sets a session cookie, kept in
// the client's jar; a token in the body is cached for header injection.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "/api/auth/login", body)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	var res authResponse
	if err := c.send(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}

	if res.Token != "" && c.tokens != nil {
		if err := c.tokens.SetToken(res.Token); err != nil {
			c.log.Warn().Err(err).Msg("caching token")
		}
	}

	return &AuthResult{User: res.User, Token: res.Token}, nil
}

// Logout ends the session. The cached token is cleared even if the remote
// call fails, so a dead session cannot keep sending a stale credential.
func (c *Client) Logout(ctx context.Context) error {
	err := c.send(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if c.tokens != nil {
		if clearErr := c.tokens.ClearToken(); clearErr != nil {
			c.log.Warn().Err(clearErr).Msg("clearing token")
		}
	}
	return err
}
