package middleware // middleware holds the request gates shared by the routers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/fleet-inventory/internal/utils"
)

// RevocationChecker reports whether a token id was revoked at logout.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTAuth returns an Echo middleware that validates the Bearer access token
// and stores the caller's id, email, roles and claims in the context.  Every
// rejection is a 401 with the same body; the reason is only logged.  A nil
// revoked disables the denylist check.
func JWTAuth(signer *utils.TokenSigner, revoked RevocationChecker, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return unauthorized(c)
			}

			claims, err := signer.Verify(raw)
			if err != nil {
				var te *utils.TokenError
				if errors.As(err, &te) {
					log.Debug("bearer token rejected", zap.String("kind", string(te.Kind)))
				}
				return unauthorized(c)
			}

			if revoked != nil {
				gone, err := revoked.IsRevoked(c.Request().Context(), claims.ID)
				switch {
				case err != nil:
					// the denylist is an enhancement; a Redis outage must not
					// lock every caller out
					log.Warn("revocation check failed", zap.Error(err))
				case gone:
					log.Debug("bearer token revoked", zap.String("jti", claims.ID))
					return unauthorized(c)
				}
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxEmail, claims.Email)
			c.Set(ctxRoles, claims.Roles)
			c.Set(ctxClaims, claims)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header.  The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return deny(c, http.StatusUnauthorized, "unauthorized")
}

func deny(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{"success": false, "message": msg})
}
