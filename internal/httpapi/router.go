package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"mortgage-rate-alerts/internal/apperr"
	"mortgage-rate-alerts/internal/metrics"
	"mortgage-rate-alerts/internal/ratealerts"
	"mortgage-rate-alerts/internal/ratelimit"
	"mortgage-rate-alerts/internal/storage"
	"mortgage-rate-alerts/internal/telemetry"
)

// Policies holds one limiter policy per route family.
type Policies struct {
	Create ratelimit.Policy
	Read   ratelimit.Policy
	Mutate ratelimit.Policy
	Admin  ratelimit.Policy
}

// Options wire the router's collaborators. A nil Limiter disables rate limiting.
type Options struct {
	Service        *ratealerts.Service
	Checker        Checker
	Ready          storage.Pinger
	Limiter        ratelimit.Limiter
	Policies       Policies
	AdminKey       string
	RequestTimeout time.Duration
	Tracing        bool
	Logger         zerolog.Logger
}

func NewRouter(opts Options) http.Handler {
	metrics.Init()

	alerts := NewAlertHandler(opts.Service, opts.Checker)
	health := NewHealthHandler(opts.Ready)
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(opts.Logger.With().Str("component", "http").Logger()))
	r.Use(requestLogger)
	r.Use(accessLog())
	r.Use(metricsMiddleware)
	r.Use(recoverer)
	r.Use(middleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound())
	})

	limit := func(p ratelimit.Policy) func(http.Handler) http.Handler {
		return rateLimit(opts.Limiter, p)
	}

	r.Route("/rate-alerts", func(r chi.Router) {
		r.Use(tenantMiddleware)
		r.With(limit(opts.Policies.Create)).Post("/", alerts.Create)
		r.With(limit(opts.Policies.Read)).Get("/", alerts.List)
		r.With(limit(opts.Policies.Read)).Get("/{id}", alerts.Get)
		r.With(limit(opts.Policies.Mutate)).Put("/{id}", alerts.Update)
		r.With(limit(opts.Policies.Mutate)).Delete("/{id}", alerts.Delete)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(limit(opts.Policies.Admin))
		r.Use(adminAuth(opts.AdminKey))
		r.Get("/rate-alerts", alerts.AdminList)
		r.Post("/rate-alerts/run-check", alerts.RunCheck)
	})

	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	if opts.Tracing {
		return telemetry.Middleware("rate-alerts")(r)
	}
	return r
}
