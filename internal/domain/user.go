// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxNameLen     = 64
	MinPasswordLen = 8
)

var (
	ErrNameEmpty        = errors.New("name empty")
	ErrNameTooLong      = errors.New("name too long")
	ErrPasswordTooShort = errors.New("password too short")
)

type UserID int64

// User is the identity record the resolver hands out. AvatarRef points
// at an externally hosted image and may be absent.
type User struct {
	ID        UserID  `json:"id"`
	Name      string  `json:"name"`
	AvatarRef *string `json:"avatarRef,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name string, avatarRef *string) (*User, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &User{ID: id, Name: name, AvatarRef: avatarRef}, nil
}

func ValidateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}
