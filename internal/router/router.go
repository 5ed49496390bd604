package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/handler"
	"github.com/iliyamo/ewaste-marketplace/internal/middleware"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

// Guard authenticates a request and loads the caller's profile.  The role
// used for gating always comes from the profile row.
type Guard struct {
	Tokens   middleware.TokenParser
	Profiles middleware.ProfileResolver
	Log      *zap.Logger
}

// Authenticated returns the middleware chain that every signed-in route
// runs: token check, then profile lookup, then the optional role gate.
func (g Guard) Authenticated(roles ...model.Role) []echo.MiddlewareFunc {
	chain := []echo.MiddlewareFunc{
		middleware.JWTAuth(g.Tokens),
		middleware.LoadProfile(g.Profiles, g.Log),
	}
	if len(roles) > 0 {
		chain = append(chain, middleware.RequireRole(roles...))
	}
	return chain
}

// RegisterRoutes registers routes that do not require authentication: the
// health check and the public object URLs.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, storageDir string) {
	e.GET("/healthz", handler.Health(db))
	e.Static("/uploads", storageDir)
}

// RegisterAuth registers sign-up, sign-in and session routes under
// /v1/auth plus the privileged user creation endpoint.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, guard Guard) {
	g := e.Group("/v1/auth")
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout works with just a refresh token in the body; a valid access
	// token additionally revokes every session of its principal.
	g.POST("/logout", a.Logout, middleware.OptionalJWT(guard.Tokens))
	g.GET("/session", a.Session, guard.Authenticated()...)

	e.POST("/api/admin/users", a.CreateUser, guard.Authenticated(model.RoleAdmin)...)
}

// RegisterAccount registers routes any signed-in user may call, and the
// public contact form.
func RegisterAccount(e *echo.Echo, p *handler.ProfileHandler, rt *handler.RealtimeHandler, guard Guard) {
	e.POST("/v1/contact", p.Contact)

	g := e.Group("/v1", guard.Authenticated()...)
	g.GET("/profile", p.Get)
	g.PATCH("/profile", p.Update)
	g.GET("/realtime", rt.Subscribe)
}
