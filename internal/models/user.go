package models

import (
	"time"
)

// Role is the authorization role carried on a user and in its tokens.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleFarmer Role = "farmer"
	RoleWorker Role = "worker"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFarmer, RoleWorker:
		return true
	}
	return false
}

type User struct {
	ID           string
	Email        string
	Phone        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	IsActive     bool
	LastLoginAt  *time.Time

	// Lockout state, only written through the lockout policy
	FailedLoginAttempts int
	LockedUntil         *time.Time

	RefreshToken *string // single active session; nil after logout

	PasswordResetTokenHash *string // SHA-256 hex of the emailed ticket
	PasswordResetExpiresAt *time.Time
	PasswordChangedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthFieldsUpdate is a partial update of the authentication columns of a user.
// Nil fields are left untouched; the Clear* flags write NULL.
type AuthFieldsUpdate struct {
	PasswordHash *string

	FailedLoginAttempts *int
	LockedUntil         *time.Time
	ClearLockedUntil    bool

	LastLoginAt *time.Time

	RefreshToken      *string
	ClearRefreshToken bool

	PasswordResetTokenHash *string
	PasswordResetExpiresAt *time.Time
	ClearPasswordReset     bool

	PasswordChangedAt *time.Time
}

// IsEmpty reports whether the update would not change any column.
func (u AuthFieldsUpdate) IsEmpty() bool {
	return u.PasswordHash == nil &&
		u.FailedLoginAttempts == nil &&
		u.LockedUntil == nil && !u.ClearLockedUntil &&
		u.LastLoginAt == nil &&
		u.RefreshToken == nil && !u.ClearRefreshToken &&
		u.PasswordResetTokenHash == nil && u.PasswordResetExpiresAt == nil && !u.ClearPasswordReset &&
		u.PasswordChangedAt == nil
}

// LockoutState is the failed-attempt counter and lock expiry of a user.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}
