package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/bimmatch/guard/internal/handlers"
	"github.com/bimmatch/guard/internal/middleware"
	"github.com/bimmatch/guard/internal/models"
	pkghttp "github.com/bimmatch/guard/pkg/http"
)

// Config carries the settings the route table needs beyond the handlers
type Config struct {
	AdminToken          string
	IPRequestsPerMinute int
	IPConfig            *pkghttp.IPConfig
	Logger              *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	cfg Config,
	limiter middleware.ActionChecker,
	healthHandler *handlers.HealthHandler,
	rateLimitHandler *handlers.RateLimitHandler,
	sessionHandler *handlers.SessionHandler,
	uploadHandler *handlers.UploadHandler,
) {
	// Liveness stays outside the throttles so probes never get a 429
	router.Get("/health", healthHandler.Health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.IPRequestsPerMinute,
			IPConfig:          cfg.IPConfig,
		}))

		// Activity posts are high frequency and renew must stay reachable
		// during the grace period, so sessions only get the coarse throttle
		sessionHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.GuardAction(limiter, models.ActionGenericAPI, "api", cfg.IPConfig, cfg.Logger))

			r.Post("/rate-limits/check", rateLimitHandler.Check)
			r.Get("/rate-limits/info", rateLimitHandler.Info)

			r.Post("/uploads/validate", uploadHandler.Validate)

			// Operator routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdminToken(cfg.AdminToken))
				r.Delete("/rate-limits/{key}", rateLimitHandler.Reset)
			})
		})
	})
}
