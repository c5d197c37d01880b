package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/calgrid/internal/api"
	"github.com/jw6ventures/calgrid/internal/auth"
	"github.com/jw6ventures/calgrid/internal/config"
	"github.com/jw6ventures/calgrid/internal/http/ratelimit"
	"github.com/jw6ventures/calgrid/internal/metrics"
	"github.com/jw6ventures/calgrid/internal/store"
)

// NewRouter wires the health, user, event and sign-in routes. oidc may be
// nil. The returned func stops the rate limiters' background cleanup.
func NewRouter(cfg *config.Config, store *store.Store, authService *auth.Service, oidc *auth.OIDC) (http.Handler, func()) {
	r := chi.NewRouter()

	loginRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(cfg.RateLimit.LoginPerSecond), cfg.RateLimit.LoginBurst, 5*time.Minute, cfg.TrustedProxies)
	apiRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(cfg.RateLimit.APIPerSecond), cfg.RateLimit.APIBurst, 5*time.Minute, cfg.TrustedProxies)
	closeLimiters := func() {
		loginRateLimiter.Close()
		apiRateLimiter.Close()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	h := api.NewHandler(cfg, store.Events, authService, oidc)

	r.Route("/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(loginRateLimiter.Middleware())
			r.Post("/", h.Register)
			r.Post("/login", h.Login)
			r.Post("/token", h.CheckToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(apiRateLimiter.Middleware())
			r.Use(authService.RequireToken)
			r.Get("/me", h.Me)
			r.Post("/logout", h.Logout)
			r.Post("/logoutAll", h.LogoutAll)
		})
	})

	r.Route("/event", func(r chi.Router) {
		r.Use(apiRateLimiter.Middleware())
		r.Use(authService.RequireToken)
		r.Get("/", h.ListEvents)
		r.Post("/", h.CreateEvent)
		r.Get("/export.ics", h.ExportEvents)
		r.Patch("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
	})

	if oidc != nil {
		r.Group(func(r chi.Router) {
			r.Use(loginRateLimiter.Middleware())
			r.Get("/auth/oidc/login", h.OIDCLogin)
			r.Get(cfg.OAuth.RedirectPath, h.OIDCCallback)
		})
	}

	return r, closeLimiters
}
