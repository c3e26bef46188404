package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medledger/internal/platform/middleware"
	"medledger/pkg/platform/httputil"
	"medledger/pkg/platform/middleware/auth"
	"medledger/pkg/platform/middleware/request"
	"medledger/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by each domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker func(ctx context.Context) error

// Config carries everything the router needs. Handlers are mounted behind
// authentication; Idempotency, when set, wraps the authenticated routes.
type Config struct {
	Logger      *slog.Logger
	Verifier    auth.CredentialVerifier
	Handlers    []Registrar
	Idempotency func(http.Handler) http.Handler
	Observer    middleware.HTTPObserver
	Gatherer    prometheus.Gatherer
	Health      map[string]HealthChecker
}

// NewRouter wires all public endpoints.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Latency(cfg.Observer))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Verifier, cfg.Logger))
		if cfg.Idempotency != nil {
			r.Use(cfg.Idempotency)
		}
		for _, h := range cfg.Handlers {
			h.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
