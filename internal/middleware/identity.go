package middleware

// identity.go reads what JWTAuth stored in the Echo context.  Handlers use
// these helpers instead of touching the context keys directly.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-inventory/internal/utils"
)

const (
	ctxUserID = "user_id"
	ctxEmail  = "email"
	ctxRoles  = "roles"
	ctxClaims = "claims"
)

// UserID returns the authenticated subject, or "" on unauthenticated routes.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Email returns the authenticated email claim.
func Email(c echo.Context) string {
	s, _ := c.Get(ctxEmail).(string)
	return s
}

// Roles returns the role claims of the caller.
func Roles(c echo.Context) []string {
	r, _ := c.Get(ctxRoles).([]string)
	return r
}

// Claims returns the verified claim set, or nil.
func Claims(c echo.Context) *utils.Claims {
	cl, _ := c.Get(ctxClaims).(*utils.Claims)
	return cl
}

// userID is the rate limiter's view of the caller: the subject when a token
// was verified earlier in the chain, "anon" otherwise.
func userID(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
