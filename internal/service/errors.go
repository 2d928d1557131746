package service

import "errors"

// Sentinel errors of the auth flows.  Handlers map them onto HTTP statuses;
// anything else is an internal error.
var (
	ErrDuplicateEmail         = errors.New("an account with this email already exists")
	ErrWeakPassword           = errors.New("password does not meet the password policy")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrAccountLocked          = errors.New("account is temporarily locked")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrNotFound               = errors.New("user not found")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
