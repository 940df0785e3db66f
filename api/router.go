package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterConfig wires the HTTP surface of the service.
type RouterConfig struct {
	Handler    *Handler                        // Required
	Metrics    SnapshotSource                  // Optional: enables GET /metrics
	Prometheus http.Handler                    // Optional: enables GET /metrics/prometheus
	RateLimit  func(http.Handler) http.Handler // Optional: guards /api/v1
	Protected  http.Handler                    // Optional: mounted at /api/v1 behind RateLimit
	Logger     *slog.Logger
}

// NewRouter builds the chi router.
//
//	POST   /check
//	GET    /usage/{identity}?extended=true
//	DELETE /usage/{identity}
//	GET    /api/ping
//	GET    /metrics
//	GET    /metrics/prometheus
//	*      /api/v1/*  (rate limited)
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(cfg.Logger))

	h := cfg.Handler
	r.Post("/check", h.Check)
	r.Get("/usage/{identity}", h.Usage)
	r.Delete("/usage/{identity}", h.ResetUsage)
	r.Get("/api/ping", h.Ping)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", NewMetricsHandler(cfg.Metrics))
	}
	if cfg.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics/prometheus", cfg.Prometheus)
	}

	if cfg.Protected != nil {
		r.Route("/api/v1", func(r chi.Router) {
			if cfg.RateLimit != nil {
				r.Use(cfg.RateLimit)
			}
			r.Handle("/*", cfg.Protected)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, "Route not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	return r
}
