package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/fleet-inventory/internal/config"
	"github.com/iliyamo/fleet-inventory/internal/metrics"
	"github.com/iliyamo/fleet-inventory/internal/service"
	"github.com/iliyamo/fleet-inventory/internal/utils"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		Env:                  "test",
		JWTSecret:            "test-secret-0123456789abcdef0123456789",
		JWTIssuer:            "CarEngineAPI",
		JWTAudience:          "CarEngineApp",
		TokenTTL:             24 * time.Hour,
		BcryptCost:           bcrypt.MinCost,
		PasswordMinLength:    6,
		LockoutThreshold:     5,
		LockoutDuration:      5 * time.Minute,
		ResetTokenTTL:        24 * time.Hour,
		ResetTokenInResponse: true,
		DefaultRole:          "User",
		AdminEmails:          []string{"boss@x.com"},
	}
}

type fixture struct {
	svc    *service.AuthService
	store  *memoryUserStore
	signer *utils.TokenSigner
	clock  *clock
}

func newFixture(t *testing.T, cfg config.Config, opts ...service.Option) fixture {
	t.Helper()
	clk := &clock{t: t0}
	signer, err := utils.NewTokenSigner(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	require.NoError(t, err)
	signer.WithClock(clk.Now)
	store := newMemoryUserStore()
	opts = append([]service.Option{service.WithClock(clk.Now)}, opts...)
	svc, err := service.NewAuthService(cfg, store, signer, zap.NewNop(), opts...)
	require.NoError(t, err)
	return fixture{svc: svc, store: store, signer: signer, clock: clk}
}

func register(t *testing.T, f fixture, email, password string) *service.AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), service.RegisterInput{
		Email: email, Password: password, ConfirmPassword: password,
		FirstName: "Ann", LastName: "Lee",
	})
	require.NoError(t, err)
	return res
}

func login(f fixture, email, password string) (*service.AuthResult, error) {
	return f.svc.Login(context.Background(), service.LoginInput{Email: email, Password: password})
}

func TestRegister_IssuesTokenForNewAccount(t *testing.T) {
	f := newFixture(t, testConfig())

	res := register(t, f, "  A@X.com ", "secret1")

	assert.Equal(t, "a@x.com", res.User.Email)
	assert.Equal(t, "Ann Lee", res.User.FullName)
	assert.True(t, res.User.EmailConfirmed)
	assert.Equal(t, []string{"User"}, res.User.Roles)
	assert.Equal(t, t0.Add(24*time.Hour), res.Expires)

	claims, err := f.signer.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, []string{"User"}, claims.Roles)
}

func TestRegister_AdminEmailsGetAdminRole(t *testing.T) {
	f := newFixture(t, testConfig())

	res := register(t, f, "Boss@x.com", "secret1")
	assert.Equal(t, []string{"User", "Admin"}, res.User.Roles)
}

func TestRegister_DuplicateEmailAnyCasing(t *testing.T) {
	f := newFixture(t, testConfig())
	register(t, f, "a@x.com", "secret1")

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Email: "A@X.COM", Password: "secret2", ConfirmPassword: "secret2",
		FirstName: "Bo", LastName: "Ng",
	})
	assert.ErrorIs(t, err, service.ErrDuplicateEmail)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t, testConfig())

	cases := []struct {
		name string
		in   service.RegisterInput
		msg  string
	}{
		{"missing email", service.RegisterInput{Password: "secret1", ConfirmPassword: "secret1", FirstName: "A", LastName: "B"}, "email is required"},
		{"bad email", service.RegisterInput{Email: "nope", Password: "secret1", ConfirmPassword: "secret1", FirstName: "A", LastName: "B"}, "email must be a valid email address"},
		{"mismatch", service.RegisterInput{Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret2", FirstName: "A", LastName: "B"}, "confirmPassword must match password"},
		{"missing name", service.RegisterInput{Email: "a@x.com", Password: "secret1", ConfirmPassword: "secret1", LastName: "B"}, "firstName is required"},
		{"short password", service.RegisterInput{Email: "a@x.com", Password: "abc", ConfirmPassword: "abc", FirstName: "A", LastName: "B"}, "at least 6 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tc.in)
			var ve *service.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Contains(t, ve.Message, tc.msg)
		})
	}
}

func TestLogin_Succeeds(t *testing.T) {
	f := newFixture(t, testConfig())
	reg := register(t, f, "a@x.com", "secret1")

	res, err := login(f, "A@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEqual(t, reg.Token, res.Token)
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t, testConfig())
	register(t, f, "a@x.com", "secret1")

	_, errWrong := login(f, "a@x.com", "wrongpw")
	_, errUnknown := login(f, "nobody@x.com", "secret1")
	assert.ErrorIs(t, errWrong, service.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, service.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
}

func TestLogin_LockoutAfterThreshold(t *testing.T) {
	f := newFixture(t, testConfig())
	register(t, f, "a@x.com", "secret1")

	for i := 0; i < 5; i++ {
		_, err := login(f, "a@x.com", "wrongpw")
		require.ErrorIs(t, err, service.ErrInvalidCredentials, "attempt %d", i+1)
	}

	_, err := login(f, "a@x.com", "secret1")
	assert.ErrorIs(t, err, service.ErrAccountLocked)

	f.clock.Advance(5*time.Minute - time.Second)
	_, err = login(f, "a@x.com", "secret1")
	assert.ErrorIs(t, err, service.ErrAccountLocked)

	f.clock.Advance(time.Second)
	_, err = login(f, "a@x.com", "secret1")
	assert.NoError(t, err)
}

func TestLogin_LockoutHoldsUnderConcurrentFailures(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	register(t, f, "a@x.com", "secret1")
	f.store.readDelay = 2 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < cfg.LockoutThreshold; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := login(f, "a@x.com", "wrongpw")
			assert.ErrorIs(t, err, service.ErrInvalidCredentials)
		}()
	}
	wg.Wait()

	_, err := login(f, "a@x.com", "secret1")
	assert.ErrorIs(t, err, service.ErrAccountLocked)

	u, err := f.store.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, u.FailedAttempts)
	require.NotNil(t, u.LockoutUntil)
	assert.Equal(t, t0.Add(cfg.LockoutDuration), *u.LockoutUntil)
}

func TestLogin_TrimsEmail(t *testing.T) {
	f := newFixture(t, testConfig())
	register(t, f, "a@x.com", "secret1")

	res, err := login(f, "  A@x.com\t", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", res.User.Email)
}

func TestLogin_SuccessResetsFailureCount(t *testing.T) {
	f := newFixture(t, testConfig())
	register(t, f, "a@x.com", "secret1")

	for i := 0; i < 4; i++ {
		_, _ = login(f, "a@x.com", "wrongpw")
	}
	_, err := login(f, "a@x.com", "secret1")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, _ = login(f, "a@x.com", "wrongpw")
	}
	_, err = login(f, "a@x.com", "secret1")
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, testConfig())
	reg := register(t, f, "a@x.com", "secret1")
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, reg.User.ID, service.ChangePasswordInput{
		CurrentPassword: "nope!!", NewPassword: "secret2", ConfirmNewPassword: "secret2",
	})
	assert.ErrorIs(t, err, service.ErrInvalidCurrentPassword)

	err = f.svc.ChangePassword(ctx, reg.User.ID, service.ChangePasswordInput{
		CurrentPassword: "secret1", NewPassword: "secret2", ConfirmNewPassword: "secret2",
	})
	require.NoError(t, err)

	_, err = login(f, "a@x.com", "secret1")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = login(f, "a@x.com", "secret2")
	assert.NoError(t, err)

	// tokens issued before the change stay valid
	_, err = f.signer.Verify(reg.Token)
	assert.NoError(t, err)
}

func TestChangePassword_UnknownUserAndMismatch(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, "missing", service.ChangePasswordInput{
		CurrentPassword: "secret1", NewPassword: "secret2", ConfirmNewPassword: "secret2",
	})
	assert.ErrorIs(t, err, service.ErrNotFound)

	err = f.svc.ChangePassword(ctx, "missing", service.ChangePasswordInput{
		CurrentPassword: "secret1", NewPassword: "secret2", ConfirmNewPassword: "other",
	})
	assert.True(t, service.IsValidation(err))
}

func TestMe(t *testing.T) {
	f := newFixture(t, testConfig())
	reg := register(t, f, "a@x.com", "secret1")

	info, err := f.svc.Me(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", info.Email)
	assert.Equal(t, t0, info.CreatedAt)

	_, err = f.svc.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestForgotPassword_UniformForUnknownEmail(t *testing.T) {
	mailer := &recordingMailer{}
	f := newFixture(t, testConfig(), service.WithMailer(mailer))
	register(t, f, "a@x.com", "secret1")

	token, err := f.svc.ForgotPassword(context.Background(), service.ForgotPasswordInput{Email: "nobody@x.com"})
	require.NoError(t, err)
	assert.Empty(t, token)
	f.svc.Wait()
	assert.Empty(t, mailer.sent())

	token, err = f.svc.ForgotPassword(context.Background(), service.ForgotPasswordInput{Email: " A@x.com "})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	f.svc.Wait()
	sent := mailer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@x.com", sent[0].Email)
	assert.Equal(t, token, sent[0].Token)
}

func TestForgotPassword_DoesNotWaitForMailer(t *testing.T) {
	mailer := &recordingMailer{delay: 300 * time.Millisecond}
	f := newFixture(t, testConfig(), service.WithMailer(mailer))
	register(t, f, "a@x.com", "secret1")

	// the request context ends with the response; the publish must outlive it
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	_, err := f.svc.ForgotPassword(ctx, service.ForgotPasswordInput{Email: "a@x.com"})
	known := time.Since(start)
	cancel()
	require.NoError(t, err)

	start = time.Now()
	_, err = f.svc.ForgotPassword(context.Background(), service.ForgotPasswordInput{Email: "nobody@x.com"})
	unknown := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, known, 100*time.Millisecond)
	assert.Less(t, unknown, 100*time.Millisecond)
	assert.Empty(t, mailer.sent())

	f.svc.Wait()
	require.Len(t, mailer.sent(), 1)
}

func TestForgotPassword_InvalidEmailIsCounted(t *testing.T) {
	m := metrics.NewAuth()
	f := newFixture(t, testConfig(), service.WithMetrics(m))

	_, err := f.svc.ForgotPassword(context.Background(), service.ForgotPasswordInput{Email: "not-an-email"})
	require.True(t, service.IsValidation(err))

	expected := `
# HELP fleet_auth_events_total Authentication flow outcomes.
# TYPE fleet_auth_events_total counter
fleet_auth_events_total{flow="forgot_password",result="invalid"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "fleet_auth_events_total"))
}

func TestForgotPassword_TokenNotEchoedWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.ResetTokenInResponse = false
	mailer := &recordingMailer{err: errors.New("broker down")}
	f := newFixture(t, cfg, service.WithMailer(mailer))
	register(t, f, "a@x.com", "secret1")

	token, err := f.svc.ForgotPassword(context.Background(), service.ForgotPasswordInput{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Empty(t, token)
	f.svc.Wait()
	sent := mailer.sent()
	require.Len(t, sent, 1)
	assert.NotEmpty(t, sent[0].Token)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t, testConfig())
	register(t, f, "a@x.com", "secret1")
	ctx := context.Background()

	token, err := f.svc.ForgotPassword(ctx, service.ForgotPasswordInput{Email: "a@x.com"})
	require.NoError(t, err)

	in := service.ResetPasswordInput{Email: "a@x.com", Token: token, NewPassword: "secret9", ConfirmPassword: "secret9"}
	require.NoError(t, f.svc.ResetPassword(ctx, in))

	_, err = login(f, "a@x.com", "secret9")
	assert.NoError(t, err)

	// the stamp rotated, so the same token is spent
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, in), service.ErrInvalidOrExpiredToken)
}

func TestResetPassword_StaleStampAfterPasswordChange(t *testing.T) {
	f := newFixture(t, testConfig())
	reg := register(t, f, "a@x.com", "secret1")
	ctx := context.Background()

	token, err := f.svc.ForgotPassword(ctx, service.ForgotPasswordInput{Email: "a@x.com"})
	require.NoError(t, err)
	require.NoError(t, f.svc.ChangePassword(ctx, reg.User.ID, service.ChangePasswordInput{
		CurrentPassword: "secret1", NewPassword: "secret2", ConfirmNewPassword: "secret2",
	}))

	err = f.svc.ResetPassword(ctx, service.ResetPasswordInput{
		Email: "a@x.com", Token: token, NewPassword: "secret3", ConfirmPassword: "secret3",
	})
	assert.ErrorIs(t, err, service.ErrInvalidOrExpiredToken)
}

func TestResetPassword_ExpiredUnknownAndGarbage(t *testing.T) {
	f := newFixture(t, testConfig())
	register(t, f, "a@x.com", "secret1")
	ctx := context.Background()

	token, err := f.svc.ForgotPassword(ctx, service.ForgotPasswordInput{Email: "a@x.com"})
	require.NoError(t, err)

	err = f.svc.ResetPassword(ctx, service.ResetPasswordInput{
		Email: "nobody@x.com", Token: token, NewPassword: "secret3", ConfirmPassword: "secret3",
	})
	assert.ErrorIs(t, err, service.ErrInvalidOrExpiredToken)

	err = f.svc.ResetPassword(ctx, service.ResetPasswordInput{
		Email: "a@x.com", Token: "garbage", NewPassword: "secret3", ConfirmPassword: "secret3",
	})
	assert.ErrorIs(t, err, service.ErrInvalidOrExpiredToken)

	f.clock.Advance(24 * time.Hour)
	err = f.svc.ResetPassword(ctx, service.ResetPasswordInput{
		Email: "a@x.com", Token: token, NewPassword: "secret3", ConfirmPassword: "secret3",
	})
	assert.ErrorIs(t, err, service.ErrInvalidOrExpiredToken)
}

func TestLogout(t *testing.T) {
	revoker := &memoryRevoker{}
	f := newFixture(t, testConfig(), service.WithRevoker(revoker))
	reg := register(t, f, "a@x.com", "secret1")

	claims, err := f.signer.Verify(reg.Token)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(context.Background(), claims))

	revoked, err := revoker.IsRevoked(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.WithinDuration(t, reg.Expires, revoker.revoked[claims.ID], 0)
}

func TestLogout_StatelessWithoutRevoker(t *testing.T) {
	f := newFixture(t, testConfig())
	reg := register(t, f, "a@x.com", "secret1")

	claims, err := f.signer.Verify(reg.Token)
	require.NoError(t, err)
	assert.NoError(t, f.svc.Logout(context.Background(), claims))

	_, err = f.signer.Verify(reg.Token)
	assert.NoError(t, err)
}
