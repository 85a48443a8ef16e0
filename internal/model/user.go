package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// User is a registered account on the remote service. This client never
// mutates other users; it only reads them for display and assignment.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DisplayName returns the name, falling back to the email and then the ID.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// UnmarshalJSON accepts either an expanded user object or a bare identifier
// string, since the service only expands references on some endpoints.
func (u *User) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decoding user reference: %w", err)
		}
		*u = User{ID: id}
		return nil
	}

	type plain User
	var p struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding user: %w", err)
	}
	*u = User(p.plain)
	if u.ID == "" {
		u.ID = p.AltID
	}
	return nil
}

// ProfileUpdate carries the editable fields of the current user's profile.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}
