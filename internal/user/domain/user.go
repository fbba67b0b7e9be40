package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the core user entity. Users are never physically deleted; Status
// carries the soft-delete state.
type User struct {
	ID              string
	Email           string
	NormalizedEmail string // lowercased, trimmed; unique across users
	PasswordHash    string // opaque to this service; produced by the credential hasher
	Status          UserStatus
	MFAEnabled      bool
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// NormalizeEmail returns the canonical form of email used for uniqueness and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.NormalizedEmail == "" {
		u.NormalizedEmail = NormalizeEmail(u.Email)
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
