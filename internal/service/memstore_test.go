package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/fleet-inventory/internal/model"
	"github.com/iliyamo/fleet-inventory/internal/queue"
	"github.com/iliyamo/fleet-inventory/internal/repository"
)

// memoryUserStore keeps copies so the service only sees what it persisted.
// readDelay stretches email lookups so concurrent logins overlap.
type memoryUserStore struct {
	mu        sync.Mutex
	users     map[string]model.User
	readDelay time.Duration
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: map[string]model.User{}}
}

func (m *memoryUserStore) Create(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	m.users[u.ID] = cp
	return nil
}

func (m *memoryUserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.readDelay > 0 {
		time.Sleep(m.readDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == model.NormalizeEmail(email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memoryUserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (m *memoryUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *memoryUserStore) Roles(ctx context.Context, userID string) ([]string, error) {
	u, err := m.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Roles, nil
}

func (m *memoryUserStore) UpdatePassword(ctx context.Context, id, hash, stamp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash, u.SecurityStamp = hash, stamp
	m.users[id] = u
	return nil
}

func (m *memoryUserStore) UpdateLockout(ctx context.Context, id string, failed int, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.FailedAttempts = failed
	if until != nil {
		t := *until
		u.LockoutUntil = &t
	} else {
		u.LockoutUntil = nil
	}
	m.users[id] = u
	return nil
}

func (m *memoryUserStore) IncrementFailedLogin(ctx context.Context, id string, threshold int, now, lockUntil time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil, repository.ErrUserNotFound
	}
	if u.LockedAt(now) {
		return u.FailedAttempts, nil, nil
	}
	u.FailedAttempts++
	u.LockoutUntil = nil
	var locked *time.Time
	if u.FailedAttempts >= threshold {
		t := lockUntil
		u.FailedAttempts, u.LockoutUntil = 0, &t
		locked = &t
	}
	m.users[id] = u
	return u.FailedAttempts, locked, nil
}

// ----- collaborators -----

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// recordingMailer keeps published events.  With a delay it behaves like a
// slow broker and drops the event if ctx ends first.
type recordingMailer struct {
	mu     sync.Mutex
	events []queue.PasswordResetRequested
	err    error
	delay  time.Duration
}

func (r *recordingMailer) PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingMailer) sent() []queue.PasswordResetRequested {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.PasswordResetRequested(nil), r.events...)
}

type memoryRevoker struct {
	revoked map[string]time.Time
}

func (r *memoryRevoker) Revoke(ctx context.Context, jti string, exp time.Time) error {
	if r.revoked == nil {
		r.revoked = map[string]time.Time{}
	}
	r.revoked[jti] = exp
	return nil
}

func (r *memoryRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok := r.revoked[jti]
	return ok, nil
}
