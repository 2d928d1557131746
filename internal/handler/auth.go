package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-inventory/internal/middleware"
	"github.com/iliyamo/fleet-inventory/internal/service"
	"github.com/iliyamo/fleet-inventory/internal/utils"
)

// forgotPasswordMessage is identical for known and unknown emails.
const forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

// requestTimeout bounds the store calls of one auth request.
const requestTimeout = 5 * time.Second

// AuthService is the part of *service.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, in service.LoginInput) (*service.AuthResult, error)
	Logout(ctx context.Context, claims *utils.Claims) error
	Me(ctx context.Context, userID string) (*service.UserInfo, error)
	ChangePassword(ctx context.Context, userID string, in service.ChangePasswordInput) error
	ForgotPassword(ctx context.Context, in service.ForgotPasswordInput) (string, error)
	ResetPassword(ctx context.Context, in service.ResetPasswordInput) error
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register: create the account and sign it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var in service.RegisterInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.Register(ctx, in)
	if err != nil {
		return authError(c, err)
	}
	return tokenResponse(c, "Registration successful", res)
}

// Login: verify credentials and issue a token.
func (h *AuthHandler) Login(c echo.Context) error {
	var in service.LoginInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.Login(ctx, in)
	if err != nil {
		return authError(c, err)
	}
	return tokenResponse(c, "Login successful", res)
}

// Logout: acknowledge, and revoke the token when revocation is enabled.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), middleware.Claims(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "Logout successful"})
}

// Me: the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	info, err := h.svc.Me(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, User: info})
}

// ChangePassword: verify the current password and set a new one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var in service.ChangePasswordInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.svc.ChangePassword(ctx, middleware.UserID(c), in); err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "Password changed successfully"})
}

// ForgotPassword: always the same answer; the token is included only when
// the server is configured to echo it.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var in service.ForgotPasswordInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	token, err := h.svc.ForgotPassword(ctx, in)
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: forgotPasswordMessage, Token: token})
}

// ResetPassword: apply a new password with a reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var in service.ResetPasswordInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.svc.ResetPassword(ctx, in); err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "Password has been reset successfully"})
}

func tokenResponse(c echo.Context, msg string, res *service.AuthResult) error {
	exp := res.Expires
	return c.JSON(http.StatusOK, envelope{
		Success:         true,
		Message:         msg,
		Token:           res.Token,
		TokenExpiration: &exp,
		User:            &res.User,
	})
}

// authError maps service errors onto statuses.  Unknown errors go to the
// error handler as a 500.
func authError(c echo.Context, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return fail(c, http.StatusBadRequest, ve.Message)
	case errors.Is(err, service.ErrDuplicateEmail),
		errors.Is(err, service.ErrInvalidOrExpiredToken),
		errors.Is(err, service.ErrInvalidCurrentPassword):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountLocked):
		return fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return fail(c, http.StatusNotFound, err.Error())
	}
	return err
}
