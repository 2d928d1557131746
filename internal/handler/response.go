package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/fleet-inventory/internal/service"
	"github.com/iliyamo/fleet-inventory/internal/utils"
)

// envelope is the body of every auth response and every error.
type envelope struct {
	Success         bool              `json:"success"`
	Message         string            `json:"message,omitempty"`
	Token           string            `json:"token,omitempty"`
	TokenExpiration *time.Time        `json:"tokenExpiration,omitempty"`
	User            *service.UserInfo `json:"user,omitempty"`
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{Success: false, Message: msg})
}

// ErrorHandler replaces echo's default so every error has the envelope shape
// and nothing internal leaks in 5xx bodies.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := http.StatusInternalServerError, "internal error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok && status < http.StatusInternalServerError {
				msg = m
			} else if status < http.StatusInternalServerError {
				msg = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = fail(c, status, msg)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

// requestValidator adapts go-playground/validator to echo's Validator.
type requestValidator struct {
	v *validator.Validate
}

// NewValidator returns the echo.Validator used for CRUD request bodies.
func NewValidator() echo.Validator {
	return &requestValidator{v: utils.NewValidator()}
}

func (r *requestValidator) Validate(i any) error {
	if err := r.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, utils.ValidationMessage(err))
	}
	return nil
}

// bindAndValidate decodes the JSON body into dst and runs the validator.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}
