package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check run by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Album art written by the art store
	if s.mediaDir != "" {
		prefix := strings.TrimSuffix(s.mediaPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.mediaDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleRemoveDevice)
					r.Get("/properties", s.handleListProperties)
					r.Get("/properties/{name}", s.handleGetProperty)
					r.Put("/properties/{name}", s.handleSetProperty)
					r.Post("/actions/{name}", s.handlePerformAction)
				})
			})

			r.Route("/pairing", func(r chi.Router) {
				r.Get("/", s.handleGetPairing)
				r.Post("/", s.handleStartPairing)
				r.Delete("/", s.handleCancelPairing)
			})

			// WebSocket (auth applied above, token may be passed as ?token=)
			r.Get(s.wsPath(), s.handleWebSocket)
		})
	})

	return r
}

// wsPath returns the WebSocket route under /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return "/" + strings.TrimPrefix(s.wsCfg.Path, "/")
}

// handleHealth runs the registered dependency checks. Any failure reports
// "degraded" with 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"speakers":   s.registry.Count(),
		"pairing":    s.registry.Pairing(),
		"components": components,
	})
}
