package handler

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/middleware"
)

// RouterConfig collects the handlers and middleware settings of the API.
type RouterConfig struct {
	Logger         *slog.Logger
	Development    bool
	TrustProxy     bool // rewrite RemoteAddr from proxy headers
	RequestTimeout time.Duration
	MaxBodySize    int64
	CORS           middleware.CORSConfig
	RateLimit      middleware.RateLimitConfig
	Verifier       middleware.IdentityVerifier

	// Metrics is optional; /metrics is only mounted when set.
	Metrics         *metrics.PrometheusRecorder
	MetricsUsername string
	MetricsPassword string

	Health    *HealthHandler
	Tokens    *TokenHandler
	Decisions *DecisionHandler
	Usage     *UsageHandler
	Signup    *SignupHandler
	Admin     *AdminHandler
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(cfg RouterConfig) *chi.Mux {
	h := New()
	r := chi.NewRouter()

	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger, cfg.Development))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.Development}))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.With(middleware.BasicAuth("metrics", cfg.MetricsUsername, cfg.MetricsPassword)).
			Handle("/metrics", cfg.Metrics.Handler())
	}

	identity := middleware.Identity(cfg.Verifier, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
		}
		if cfg.MaxBodySize > 0 {
			r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
		}

		// Bearer-token endpoints called by solutions; the entitlement
		// token in the body is the credential.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitIP(cfg.RateLimit))
			r.Use(middleware.RateLimitToken(cfg.RateLimit))
			r.Post("/tokens/validate", cfg.Tokens.Validate)
			r.Post("/decisions", cfg.Decisions.Decide)
		})

		// Identity-authenticated endpoints.
		r.Group(func(r chi.Router) {
			r.Use(identity)
			r.Use(middleware.RateLimitSubject(cfg.RateLimit))

			r.Post("/signup", cfg.Signup.Signup)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RolePartner, auth.RoleAdmin))
				r.Post("/tokens", cfg.Tokens.Issue)
				r.Post("/usage/check", cfg.Usage.Check)
				r.Post("/usage/increment", cfg.Usage.Increment)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleAdmin))
				r.Get("/entitlements", cfg.Admin.ListEntitlements)
				r.Patch("/entitlements", cfg.Admin.UpdateStatus)
			})
		})
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
