package types

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the system.
// It contains identity, status, and audit metadata.
type User struct {
	// ID is the unique identifier of the user. It never changes once
	// the account is created.
	ID uuid.UUID `json:"id" db:"id"`

	// Email is the user's email address, unique across all accounts.
	Email string `json:"email" db:"email"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// FullName is the user's optional display name.
	FullName *string `json:"full_name,omitempty" db:"full_name"`

	// IsActive reports whether the account may open new sessions.
	IsActive bool `json:"is_active" db:"is_active"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LastLogin is the timestamp of the most recent successful login,
	// unset until the user logs in for the first time.
	LastLogin *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// UserUpdate describes a partial update to a user. Nil fields are left
// unchanged.
type UserUpdate struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	IsActive *bool   `json:"is_active"`
}

// UserStats holds aggregate account counts.
type UserStats struct {
	TotalUsers    int `json:"total_users"`
	ActiveUsers   int `json:"active_users"`
	InactiveUsers int `json:"inactive_users"`
}

// TokenPair is the session credential set handed to a client after a
// successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
