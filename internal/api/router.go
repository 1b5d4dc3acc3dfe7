package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/entities", s.handleListEntities)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{address}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/availability", s.handleDeviceAvailability)
				r.Get("/entities", s.handleDeviceEntities)
				r.Get("/composites", s.handleDeviceComposites)
				r.Get("/values/{channel}/{parameter}", s.handleGetValue)
				r.Put("/values/{channel}/{parameter}", s.handleSetValue)
			})
		})
	})

	return r
}

// handleHealth returns the server health status and backend connection
// state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if s.state != nil && !s.state.Healthy() {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"devices": len(s.central.Devices()),
	})
}
