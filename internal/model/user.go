package model

import (
	"strings"
	"time"
)

// User represents an account as stored in the `users` table together with
// its role memberships from `user_roles`.
//
// Fields:
//
//	ID             – opaque stable identifier (UUID string).
//	Email          – unique, stored lower-cased.
//	PasswordHash   – bcrypt hash of the password.
//	SecurityStamp  – changes whenever credentials change; reset tokens derive from it.
//	FailedAttempts – consecutive failed logins since the last success or lockout.
//	LockoutUntil   – logins are refused until this instant (nil when not locked).
type User struct {
	ID             string
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	EmailConfirmed bool
	SecurityStamp  string
	FailedAttempts int
	LockoutUntil   *time.Time
	Roles          []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayName is the "first last" name carried in token claims.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// LockedAt reports whether the account is locked out at the given instant.
func (u User) LockedAt(now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

// NormalizeEmail is the canonical form used for storage and lookups, which
// makes email uniqueness case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Well-known role names.
const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)
