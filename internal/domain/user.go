// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// User is one participant's identity inside a room. The ID is assigned by
// the relay per connection; usernames are display-only and not unique.
// IsHost is advisory, it confers no privilege.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	IsHost   bool   `json:"isHost"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(username string, isHost bool) (*User, error) {
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	id := UserID(uuid.NewString())
	return &User{ID: id, Username: username, IsHost: isHost}, nil
}
