package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/metrics", s.handleMetrics)

			r.Route("/appliances", func(r chi.Router) {
				r.Get("/", s.handleListAppliances)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetAppliance)
					r.Get("/characteristics", s.handleListCharacteristics)
					r.Get("/characteristics/{name}", s.handleReadCharacteristic)
					r.Put("/characteristics/{name}", s.handleWriteCharacteristic)
				})
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth reports the bridge health. Offline appliances degrade the
// status but never fail the check; only a dead database does.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":  s.bridge.Health(),
		"version": s.version,
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["database"] = "unavailable"
		} else {
			body["database"] = "ok"
		}
	}

	// Metrics export is best effort; an unreachable sink does not make
	// the bridge unhealthy.
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.metrics.HealthCheck(ctx); err != nil {
			body["metrics"] = "degraded"
		} else {
			body["metrics"] = "ok"
		}
	}

	writeJSON(w, status, body)
}
