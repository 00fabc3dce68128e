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
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{ref}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Put("/state", s.handleSetDeviceState)
				r.Get("/history", s.handleGetDeviceHistory)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server and responder health.
//
// The status is "ok" once the responder is bound to the network,
// "starting" before it has ever initialized and "degraded" after the
// network was lost. Disabled responders report "disabled".
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.responder.Status()

	status := "ok"
	switch {
	case !st.Enabled:
		status = "disabled"
	case !st.Initialized:
		status = "starting"
	case !st.NetworkReady:
		status = "degraded"
	}

	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"responder":  st,
		"ws_clients": clients,
	})
}
