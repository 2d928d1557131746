package router // package router builds the Echo instance and registers the API routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/fleet-inventory/internal/handler"
	"github.com/iliyamo/fleet-inventory/internal/logger"
	"github.com/iliyamo/fleet-inventory/internal/middleware"
	"github.com/iliyamo/fleet-inventory/internal/model"
)

// New returns an Echo instance with the shared middleware stack: panic
// recovery, request ids, request logging and CORS for the SPA origins.
// Errors are rendered by handler.ErrorHandler.
func New(corsOrigins []string, log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(logger.RequestLogger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
	}))
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
	if metrics != nil {
		e.GET("/metrics", metrics)
	}
}

// RegisterAuth registers /api/auth.  The credential endpoints go through the
// rate limiter; the session endpoints go through the bearer gate.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, gate, limiter echo.MiddlewareFunc) {
	limiter = orNoop(limiter)
	g := e.Group("/api/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/forgot-password", a.ForgotPassword, limiter)
	g.POST("/reset-password", a.ResetPassword, limiter)

	g.POST("/logout", a.Logout, gate)
	g.GET("/me", a.Me, gate)
	g.POST("/change-password", a.ChangePassword, gate)
}

// Fleet groups the inventory handlers.
type Fleet struct {
	Cars        *handler.VehicleHandler
	Motorcycles *handler.VehicleHandler
	Engines     *handler.EngineHandler
}

// RegisterFleet registers the inventory CRUD routes.  Reads are public and
// cached; writes need the User or Admin role and flush the cache; deletes
// need Admin.
func RegisterFleet(e *echo.Echo, f Fleet, gate, cache, invalidate echo.MiddlewareFunc) {
	api := e.Group("/api", orNoop(cache), orNoop(invalidate))
	writers := middleware.RequireRole(model.RoleUser, model.RoleAdmin)
	admins := middleware.RequireRole(model.RoleAdmin)

	type crud interface {
		List(echo.Context) error
		Get(echo.Context) error
		Create(echo.Context) error
		Update(echo.Context) error
		Delete(echo.Context) error
	}
	for prefix, h := range map[string]crud{
		"/cars":        f.Cars,
		"/motorcycles": f.Motorcycles,
		"/engines":     f.Engines,
	} {
		g := api.Group(prefix)
		g.GET("", h.List)
		g.GET("/:id", h.Get)
		g.POST("", h.Create, gate, writers)
		g.PUT("/:id", h.Update, gate, writers)
		g.DELETE("/:id", h.Delete, gate, admins)
	}
}

func orNoop(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}
