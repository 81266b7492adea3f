package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/course-checkout/api"
	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/auth"
	"github.com/frahmantamala/course-checkout/internal/payment"
	"github.com/frahmantamala/course-checkout/internal/telemetry"
	"github.com/frahmantamala/course-checkout/internal/transport"
	"github.com/frahmantamala/course-checkout/internal/transport/middleware"
	"github.com/frahmantamala/course-checkout/internal/transport/swagger"
)

type Dependencies struct {
	Checkout *payment.Handler
	Tokens   auth.TokenValidator
	Health   *HealthHandler

	// AllowedOrigins is a comma separated list; "*" allows any origin.
	AllowedOrigins string

	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	Tracing     bool
}

func RegisterAllRoutes(router *chi.Mux, deps Dependencies, logger *slog.Logger) {
	base := transport.NewBaseHandler(logger)

	// Apply global middleware
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	if deps.Tracing {
		router.Use(telemetry.Middleware)
	}
	router.Use(middleware.LoggingMiddleware(logger))

	// OpenAPI document at root, outside the API prefix
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(api.Spec)
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, deps.Metrics)
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		if deps.Health != nil {
			r.Get("/health", deps.Health.healthCheckHandler)
			r.Get("/ping", deps.Health.pingHandler)
		}

		if deps.Checkout == nil || deps.Tokens == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.Authenticate(deps.Tokens, base))

			pr.Get("/checkout/methods", deps.Checkout.ListMethods)

			// Only learners and admins ever own or act for an enrollment
			pr.Group(func(cr chi.Router) {
				cr.Use(middleware.RequireRoles(base, internal.RoleLearner, internal.RoleAdmin))

				cr.Post("/enrollments/{id}/checkout", deps.Checkout.OpenCheckout)
				cr.Get("/enrollments/{id}/payments", deps.Checkout.PaymentHistory)
				cr.Route("/checkout/{sessionID}", func(sr chi.Router) {
					sr.Get("/", deps.Checkout.GetCheckout)
					sr.Post("/input", deps.Checkout.UpdateInput)
					sr.Post("/pay", deps.Checkout.Pay)
					sr.Post("/retry", deps.Checkout.Retry)
					sr.Post("/cancel", deps.Checkout.Cancel)
				})
			})
		})
	})
}
