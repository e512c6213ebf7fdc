package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/handlers"
	"github.com/BradenHooton/farmtrack/internal/models"
)

// DefaultFreshTokenMaxAge bounds the age of the access token accepted for
// account administration.
const DefaultFreshTokenMaxAge = 30 * time.Minute

// Dependencies are the handlers and guards mounted by RegisterRoutes
type Dependencies struct {
	Auth  *handlers.AuthHandler
	Users *handlers.UserHandler
	Farms *handlers.FarmHandler
	Admin *handlers.AdminHandler

	Authenticator    *auth.Authenticator
	AuthLimiter      func(http.Handler) http.Handler // every /api/auth endpoint
	LoginLimiter     func(http.Handler) http.Handler // /api/auth/login only, on top of AuthLimiter
	FreshTokenMaxAge time.Duration

	Health  http.HandlerFunc
	Metrics http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, d Dependencies) {
	if d.FreshTokenMaxAge <= 0 {
		d.FreshTokenMaxAge = DefaultFreshTokenMaxAge
	}
	limit := orPassthrough(d.AuthLimiter)
	loginLimit := orPassthrough(d.LoginLimiter)

	if d.Health != nil {
		router.Get("/health", d.Health)
	}
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics)
	}

	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Rate limited per client IP
			r.Use(limit)

			r.Post("/register", d.Auth.Register)
			r.With(loginLimit).Post("/login", d.Auth.Login)
			r.Post("/forgot-password", d.Auth.ForgotPassword)
			r.Patch("/reset-password/{token}", d.Auth.ResetPassword)

			// Authenticated by the refresh cookie
			r.Post("/refresh-token", d.Auth.RefreshToken)

			// Access token when present, refresh cookie otherwise
			r.With(d.Authenticator.Optional).Post("/logout", d.Auth.Logout)
		})

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(d.Authenticator.Middleware)

			r.Get("/users/me", d.Users.Me)

			r.Post("/farms", d.Farms.Create)
			r.Get("/farms", d.Farms.List)
			r.Get("/farms/{id}", d.Farms.Get)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))

				r.Get("/users", d.Users.ListUsers)
				r.Get("/admin/dashboard/stats", d.Admin.GetDashboardStats)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireFreshToken(d.FreshTokenMaxAge, nil))
					r.Patch("/users/{id}/role", d.Users.UpdateRole)
					r.Patch("/users/{id}/status", d.Users.UpdateStatus)
				})
			})
		})
	})
}

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
