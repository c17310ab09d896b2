package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwsmith1983/sortimate/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router, h *handlers.Handlers) {
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Get("/health", h.Health)
		r.Get("/status", h.Status)
		r.With(RateLimit(resetRequestLimit, resetWindow)).Post("/reset", h.Reset)

		r.Get("/attempts", h.ListAttempts)
		r.Get("/alerts", h.ListAlerts)
	})
}
