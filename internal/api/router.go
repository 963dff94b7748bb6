package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health check (no auth required)
	r.Get("/healthz", s.handleHealth)

	r.Route("/sessions", func(r chi.Router) {
		// QR display routes are exempt from the API key so a browser can
		// render the pairing challenge directly. The payload is useless
		// without physical access to the phone being linked.
		r.Get("/{id}/qr", s.handleQRImage)
		r.Head("/{id}/qr", s.handleQRImage)
		r.Get("/{id}/qr.json", s.handleQRJSON)

		// Event stream authenticates via query parameter inside the
		// handler; browsers cannot set headers on WebSocket upgrades.
		r.Get("/{id}/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/status", s.handleSessionStatus)
				r.Post("/send", s.handleSend)
				r.Post("/sendMedia", s.handleSendMedia)
				r.Post("/logout", s.handleLogout)
				r.Delete("/", s.handleDeleteSession)
				r.Get("/messages", s.handleListMessages)
			})
		})
	})

	return r
}

// healthCheckTimeout bounds each backend probe in the health handler.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports server health plus the state of optional backends.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"sessions":   len(s.manager.List()),
		"components": components,
	})
}
