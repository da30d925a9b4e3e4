package domain

import (
	"errors"
	"time"
)

// User is the core user entity. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Is2FAEnabled bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// Profile is the public view of a user returned to authenticated callers.
type Profile struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Is2FAEnabled bool
}

// Profile returns the public view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		Is2FAEnabled: u.Is2FAEnabled,
	}
}
