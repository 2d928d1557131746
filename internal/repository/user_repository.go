package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/fleet-inventory/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
)

// UserRepo persists accounts in `users` and their roles in `user_roles`.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, password_hash, first_name, last_name, email_confirmed,
	security_stamp, failed_attempts, lockout_until, created_at, updated_at`

// Create inserts the user and its roles in one transaction.  The email must
// already be normalized and the password hashed.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, email_confirmed, security_stamp)
		 VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.EmailConfirmed, u.SecurityStamp)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	for _, role := range u.Roles {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role) VALUES (?,?)", u.ID, role); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByEmail fetches a user and its roles by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", model.NormalizeEmail(email))
	return r.scanWithRoles(ctx, row)
}

// GetByID fetches a user and its roles by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return r.scanWithRoles(ctx, row)
}

// ExistsByEmail reports whether an account is registered under email.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email=?)", model.NormalizeEmail(email)).Scan(&exists)
	return exists, err
}

// Roles lists the role names of a user in name order.
func (r *UserRepo) Roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT role FROM user_roles WHERE user_id=? ORDER BY role", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdatePassword stores a new hash and security stamp.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash, stamp string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, security_stamp=? WHERE id=?", hash, stamp, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateLockout stores the failed-login counter and lockout deadline.
func (r *UserRepo) UpdateLockout(ctx context.Context, id string, failedAttempts int, until *time.Time) error {
	var lockout sql.NullTime
	if until != nil {
		lockout = sql.NullTime{Time: until.UTC(), Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_attempts=?, lockout_until=? WHERE id=?", failedAttempts, lockout, id)
	return err
}

// IncrementFailedLogin counts one failed login under a row lock, so parallel
// attempts all count.  When the new count reaches threshold the counter goes
// back to 0 and the account is locked until lockUntil; the deadline is
// returned only in that case.  An account still locked at now is left as is.
func (r *UserRepo) IncrementFailedLogin(ctx context.Context, id string, threshold int, now, lockUntil time.Time) (failed int, locked *time.Time, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current sql.NullTime
	err = tx.QueryRowContext(ctx,
		"SELECT failed_attempts, lockout_until FROM users WHERE id=? FOR UPDATE", id).Scan(&failed, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrUserNotFound
		}
		return 0, nil, err
	}
	if current.Valid && now.Before(current.Time) {
		return failed, nil, tx.Commit()
	}

	failed++
	var lockout sql.NullTime
	if failed >= threshold {
		until := lockUntil.UTC()
		failed, locked = 0, &until
		lockout = sql.NullTime{Time: until, Valid: true}
	}
	if _, err = tx.ExecContext(ctx,
		"UPDATE users SET failed_attempts=?, lockout_until=? WHERE id=?", failed, lockout, id); err != nil {
		return 0, nil, err
	}
	if err = tx.Commit(); err != nil {
		return 0, nil, err
	}
	return failed, locked, nil
}

func (r *UserRepo) scanWithRoles(ctx context.Context, row *sql.Row) (*model.User, error) {
	var (
		u       model.User
		lockout sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.EmailConfirmed,
		&u.SecurityStamp, &u.FailedAttempts, &lockout, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if lockout.Valid {
		t := lockout.Time.UTC()
		u.LockoutUntil = &t
	}
	if u.Roles, err = r.Roles(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
