package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iliyamo/fleet-inventory/internal/config"
	"github.com/iliyamo/fleet-inventory/internal/metrics"
	"github.com/iliyamo/fleet-inventory/internal/model"
	"github.com/iliyamo/fleet-inventory/internal/queue"
	"github.com/iliyamo/fleet-inventory/internal/utils"
)

// mailTimeout bounds one reset mail publish.
const mailTimeout = 10 * time.Second

// ----- inputs -----

type RegisterInput struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	FirstName       string `json:"firstName" validate:"required,max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	CurrentPassword    string `json:"currentPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required"`
	ConfirmNewPassword string `json:"confirmNewPassword" validate:"required,eqfield=NewPassword"`
}

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordInput struct {
	Email           string `json:"email" validate:"required,email"`
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// ----- outputs -----

// UserInfo is the profile returned by the auth endpoints.
type UserInfo struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	FullName       string    `json:"fullName"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	CreatedAt      time.Time `json:"createdAt"`
	Roles          []string  `json:"roles"`
}

// AuthResult is a freshly issued token plus the profile it was issued for.
type AuthResult struct {
	Token   string
	Expires time.Time
	User    UserInfo
}

// Option customizes an AuthService.
type Option func(*AuthService)

// WithRevoker enables logout revocation.
func WithRevoker(r Revoker) Option { return func(s *AuthService) { s.revoker = r } }

// WithMailer routes reset tokens to the mailer.
func WithMailer(m MailPublisher) Option { return func(s *AuthService) { s.mailer = m } }

// WithMetrics records flow outcomes.
func WithMetrics(m *metrics.Auth) Option { return func(s *AuthService) { s.metrics = m } }

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option { return func(s *AuthService) { s.now = now } }

// AuthService orchestrates registration, login, logout, password change and
// the forgot/reset flows.  Every flow is per request; nothing is kept between
// calls except what the credential store persists.
type AuthService struct {
	creds   *Credentials
	signer  *utils.TokenSigner
	resets  *utils.ResetTokens
	revoker Revoker
	mailer  MailPublisher
	metrics *metrics.Auth
	log     *zap.Logger
	now     func() time.Time
	v       *validator.Validate

	defaultRole     string
	adminEmails     map[string]bool
	resetInResponse bool
	resetTTL        time.Duration
	dummyHash       string

	pending sync.WaitGroup // in-flight reset mail publishes
}

// NewAuthService wires the service from cfg.  The signer must be built from
// the same cfg.
func NewAuthService(cfg config.Config, users UserStore, signer *utils.TokenSigner, log *zap.Logger, opts ...Option) (*AuthService, error) {
	// compared against when the email is unknown so both login paths pay
	// for one bcrypt comparison
	dummy, err := utils.HashPassword("not-a-real-password", cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	s := &AuthService{
		creds: NewCredentials(users, cfg.BcryptCost, cfg.PasswordMinLength, LockoutPolicy{
			Threshold: cfg.LockoutThreshold,
			Duration:  cfg.LockoutDuration,
		}),
		signer:          signer,
		resets:          utils.NewResetTokens(cfg.JWTSecret, cfg.ResetTokenTTL),
		log:             log,
		now:             time.Now,
		v:               utils.NewValidator(),
		defaultRole:     cfg.DefaultRole,
		adminEmails:     make(map[string]bool, len(cfg.AdminEmails)),
		resetInResponse: cfg.ResetTokenInResponse,
		resetTTL:        cfg.ResetTokenTTL,
		dummyHash:       dummy,
	}
	for _, e := range cfg.AdminEmails {
		s.adminEmails[model.NormalizeEmail(e)] = true
	}
	for _, o := range opts {
		o(s)
	}
	s.resets.WithClock(s.now)
	return s, nil
}

// Register creates an account and signs it in.  The email is confirmed
// immediately; there is no verification mail.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := check(s.v, in); err != nil {
		s.metrics.Observe("register", "invalid")
		return nil, err
	}
	u := &model.User{
		Email:          in.Email,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		EmailConfirmed: true,
		Roles:          s.rolesFor(in.Email),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.creds.Create(ctx, u, in.Password); err != nil {
		switch {
		case errors.Is(err, ErrWeakPassword):
			s.metrics.Observe("register", "invalid")
			return nil, &ValidationError{Message: err.Error()}
		case errors.Is(err, ErrDuplicateEmail):
			s.metrics.Observe("register", "duplicate")
		default:
			s.metrics.Observe("register", "error")
		}
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID), zap.String("email", u.Email))
	s.metrics.Observe("register", "success")
	return s.issue(u)
}

// Login checks credentials and applies the lockout policy.  Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := check(s.v, in); err != nil {
		s.metrics.Observe("login", "invalid")
		return nil, err
	}
	now := s.now()
	u, err := s.creds.FindByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		utils.VerifyPassword(s.dummyHash, in.Password)
		s.log.Info("login failed", zap.String("email", model.NormalizeEmail(in.Email)), zap.String("reason", "unknown email"))
		s.metrics.Observe("login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.metrics.Observe("login", "error")
		return nil, err
	}

	if u.LockedAt(now) {
		s.log.Info("login refused, account locked", zap.String("user_id", u.ID), zap.Time("until", *u.LockoutUntil))
		s.metrics.Observe("login", "locked")
		return nil, ErrAccountLocked
	}

	if !s.creds.VerifyPassword(u, in.Password) {
		locked, err := s.creds.RecordFailedLogin(ctx, u, now)
		if err != nil {
			s.metrics.Observe("login", "error")
			return nil, err
		}
		if locked {
			s.log.Warn("account locked after failed logins", zap.String("user_id", u.ID), zap.Time("until", *u.LockoutUntil))
			s.metrics.Lockout()
		} else {
			s.log.Info("login failed", zap.String("user_id", u.ID), zap.Int("failed_attempts", u.FailedAttempts))
		}
		s.metrics.Observe("login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if err := s.creds.ClearFailedLogins(ctx, u); err != nil {
		s.metrics.Observe("login", "error")
		return nil, err
	}
	s.log.Info("login succeeded", zap.String("user_id", u.ID))
	s.metrics.Observe("login", "success")
	return s.issue(u)
}

// Logout revokes the presented token when a revoker is configured and is an
// acknowledgment otherwise.  Stateless tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, claims *utils.Claims) error {
	if s.revoker == nil || claims == nil {
		s.metrics.Observe("logout", "success")
		return nil
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := s.revoker.Revoke(ctx, claims.ID, exp); err != nil {
		s.metrics.Observe("logout", "error")
		return err
	}
	s.log.Info("token revoked", zap.String("user_id", claims.Subject), zap.String("jti", claims.ID))
	s.metrics.Observe("logout", "success")
	return nil
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*UserInfo, error) {
	u, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := userInfo(u)
	return &info, nil
}

// ChangePassword verifies the current password and applies the new one.
// Tokens issued before the change remain valid.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := check(s.v, in); err != nil {
		s.metrics.Observe("change_password", "invalid")
		return err
	}
	u, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.creds.ChangePassword(ctx, u, in.CurrentPassword, in.NewPassword); err != nil {
		if errors.Is(err, ErrWeakPassword) {
			s.metrics.Observe("change_password", "invalid")
			return &ValidationError{Message: err.Error()}
		}
		if errors.Is(err, ErrInvalidCurrentPassword) {
			s.metrics.Observe("change_password", "wrong_password")
		}
		return err
	}
	s.log.Info("password changed", zap.String("user_id", u.ID))
	s.metrics.Observe("change_password", "success")
	return nil
}

// ForgotPassword issues a reset token for a known email.  The result is the
// same for unknown emails; the token is returned only when echoing reset
// tokens is enabled and is empty otherwise.
func (s *AuthService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := check(s.v, in); err != nil {
		s.metrics.Observe("forgot_password", "invalid")
		return "", err
	}
	u, err := s.creds.FindByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("password reset requested for unknown email")
		s.metrics.Observe("forgot_password", "accepted")
		return "", nil
	}
	if err != nil {
		s.metrics.Observe("forgot_password", "error")
		return "", err
	}

	token := s.resets.Generate(u.ID, u.SecurityStamp)
	if s.mailer != nil {
		now := s.now().UTC()
		ev := queue.PasswordResetRequested{
			UserID:      u.ID,
			Email:       u.Email,
			Name:        u.DisplayName(),
			Token:       token,
			ExpiresAt:   now.Add(s.resetTTL).Format(time.RFC3339),
			RequestedAt: now.Format(time.RFC3339),
		}
		s.pending.Add(1)
		go s.publishReset(context.WithoutCancel(ctx), ev)
	}
	s.log.Info("password reset requested", zap.String("user_id", u.ID))
	s.metrics.Observe("forgot_password", "accepted")
	if !s.resetInResponse {
		return "", nil
	}
	return token, nil
}

// publishReset hands ev to the mailer off the request path; the response
// must not depend on whether a mail goes out.  Failures are only logged.
func (s *AuthService) publishReset(ctx context.Context, ev queue.PasswordResetRequested) {
	defer s.pending.Done()
	ctx, cancel := context.WithTimeout(ctx, mailTimeout)
	defer cancel()
	if err := s.mailer.PublishPasswordReset(ctx, ev); err != nil {
		s.log.Error("publish reset mail failed", zap.String("user_id", ev.UserID), zap.Error(err))
	}
}

// Wait blocks until the reset mails handed off so far are published or have
// failed.  Call it after the HTTP server stops.
func (s *AuthService) Wait() { s.pending.Wait() }

// ResetPassword applies a new password if the token matches the account's
// current security stamp.  Success rotates the stamp, so the token is spent.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if err := check(s.v, in); err != nil {
		s.metrics.Observe("reset_password", "invalid")
		return err
	}
	u, err := s.creds.FindByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		s.metrics.Observe("reset_password", "invalid_token")
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return err
	}
	if err := s.resets.Verify(u.ID, u.SecurityStamp, in.Token); err != nil {
		s.log.Info("password reset rejected", zap.String("user_id", u.ID))
		s.metrics.Observe("reset_password", "invalid_token")
		return ErrInvalidOrExpiredToken
	}
	if err := s.creds.ResetPassword(ctx, u, in.NewPassword); err != nil {
		if errors.Is(err, ErrWeakPassword) {
			s.metrics.Observe("reset_password", "invalid")
			return &ValidationError{Message: err.Error()}
		}
		return err
	}
	s.log.Info("password reset", zap.String("user_id", u.ID))
	s.metrics.Observe("reset_password", "success")
	return nil
}

func (s *AuthService) rolesFor(email string) []string {
	roles := []string{s.defaultRole}
	if s.adminEmails[model.NormalizeEmail(email)] && s.defaultRole != model.RoleAdmin {
		roles = append(roles, model.RoleAdmin)
	}
	return roles
}

func (s *AuthService) issue(u *model.User) (*AuthResult, error) {
	tok, err := s.signer.Issue(utils.Identity{
		ID:         u.ID,
		Email:      u.Email,
		GivenName:  u.FirstName,
		FamilyName: u.LastName,
	}, u.Roles)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: tok.Token, Expires: tok.Exp, User: userInfo(u)}, nil
}

func userInfo(u *model.User) UserInfo {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserInfo{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		FullName:       u.DisplayName(),
		EmailConfirmed: u.EmailConfirmed,
		CreatedAt:      u.CreatedAt,
		Roles:          roles,
	}
}
