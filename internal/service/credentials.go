package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/fleet-inventory/internal/model"
	"github.com/iliyamo/fleet-inventory/internal/repository"
	"github.com/iliyamo/fleet-inventory/internal/utils"
)

// UserStore is the persistence the credential store needs.  It is satisfied
// by *repository.UserRepo and must report repository.ErrUserNotFound and
// repository.ErrEmailExists.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Roles(ctx context.Context, userID string) ([]string, error)
	UpdatePassword(ctx context.Context, id, hash, stamp string) error
	UpdateLockout(ctx context.Context, id string, failedAttempts int, until *time.Time) error
	// IncrementFailedLogin must count atomically: concurrent failures all
	// count toward threshold.  It returns the lockout deadline only when this
	// call set it.
	IncrementFailedLogin(ctx context.Context, id string, threshold int, now, lockUntil time.Time) (int, *time.Time, error)
}

// LockoutPolicy bounds consecutive failed logins.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Credentials is the credential store: account lookup, creation, password
// verification and changes, roles and lockout bookkeeping.
type Credentials struct {
	users     UserStore
	cost      int
	minLength int
	lockout   LockoutPolicy
}

func NewCredentials(users UserStore, bcryptCost, minLength int, lockout LockoutPolicy) *Credentials {
	return &Credentials{users: users, cost: bcryptCost, minLength: minLength, lockout: lockout}
}

// FindByEmail returns ErrNotFound for unknown emails.  Lookup is
// case-insensitive.
func (c *Credentials) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := c.users.GetByEmail(ctx, model.NormalizeEmail(email))
	return notFound(u, err)
}

// FindByID returns ErrNotFound for unknown ids.
func (c *Credentials) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := c.users.GetByID(ctx, id)
	return notFound(u, err)
}

// Create registers u with the plaintext password.  It assigns the id and the
// initial security stamp, normalizes the email and stores the bcrypt hash.
func (c *Credentials) Create(ctx context.Context, u *model.User, plaintext string) error {
	if err := c.checkPolicy(plaintext); err != nil {
		return err
	}
	u.Email = model.NormalizeEmail(u.Email)
	exists, err := c.users.ExistsByEmail(ctx, u.Email)
	if err != nil {
		return fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return ErrDuplicateEmail
	}
	hash, err := c.hash(ctx, plaintext)
	if err != nil {
		return err
	}
	u.ID = uuid.NewString()
	u.PasswordHash = hash
	u.SecurityStamp = uuid.NewString()
	if err := c.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// VerifyPassword compares in constant time inside bcrypt.
func (c *Credentials) VerifyPassword(u *model.User, plaintext string) bool {
	return utils.VerifyPassword(u.PasswordHash, plaintext)
}

// ChangePassword replaces the password after verifying the current one and
// rotates the security stamp, which invalidates outstanding reset tokens.
func (c *Credentials) ChangePassword(ctx context.Context, u *model.User, oldPlaintext, newPlaintext string) error {
	if !c.VerifyPassword(u, oldPlaintext) {
		return ErrInvalidCurrentPassword
	}
	return c.ResetPassword(ctx, u, newPlaintext)
}

// ResetPassword replaces the password without checking the old one and rotates
// the security stamp.  The reset flow uses it once the reset token checks out.
func (c *Credentials) ResetPassword(ctx context.Context, u *model.User, newPlaintext string) error {
	if err := c.checkPolicy(newPlaintext); err != nil {
		return err
	}
	hash, err := c.hash(ctx, newPlaintext)
	if err != nil {
		return err
	}
	stamp := uuid.NewString()
	if err := c.users.UpdatePassword(ctx, u.ID, hash, stamp); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	u.PasswordHash = hash
	u.SecurityStamp = stamp
	return nil
}

// RolesOf lists the role memberships of u.
func (c *Credentials) RolesOf(ctx context.Context, u *model.User) ([]string, error) {
	roles, err := c.users.Roles(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return roles, nil
}

// RecordFailedLogin counts a failed attempt and locks the account once the
// threshold is reached.  It reports whether this attempt caused the lock.
func (c *Credentials) RecordFailedLogin(ctx context.Context, u *model.User, now time.Time) (bool, error) {
	failed, until, err := c.users.IncrementFailedLogin(ctx, u.ID, c.lockout.Threshold, now, now.Add(c.lockout.Duration))
	if err != nil {
		return false, fmt.Errorf("record failed login: %w", err)
	}
	u.FailedAttempts = failed
	if until == nil {
		return false, nil
	}
	u.LockoutUntil = until
	return true, nil
}

// ClearFailedLogins resets the counter after a successful login.
func (c *Credentials) ClearFailedLogins(ctx context.Context, u *model.User) error {
	if u.FailedAttempts == 0 && u.LockoutUntil == nil {
		return nil
	}
	if err := c.users.UpdateLockout(ctx, u.ID, 0, nil); err != nil {
		return fmt.Errorf("clear failed logins: %w", err)
	}
	u.FailedAttempts, u.LockoutUntil = 0, nil
	return nil
}

func (c *Credentials) checkPolicy(plaintext string) error {
	if len([]rune(plaintext)) < c.minLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, c.minLength)
	}
	return nil
}

func (c *Credentials) hash(ctx context.Context, plaintext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash, err := utils.HashPassword(plaintext, c.cost)
	if err != nil {
		if utils.IsTooLong(err) {
			return "", fmt.Errorf("%w: must be at most 72 bytes", ErrWeakPassword)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func notFound(u *model.User, err error) (*model.User, error) {
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
