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

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Identity of the app user
		r.Route("/auth/session", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/", s.handleSignIn)
			r.Delete("/", s.handleSignOut)
		})

		// Safety monitor. Open to the local UI: an SOS must never wait on a login.
		r.Route("/safety", func(r chi.Router) {
			r.Get("/status", s.handleSafetyStatus)
			r.Get("/system", s.handleSystemStatus)
			r.Post("/start", s.handleStartMonitoring)
			r.Post("/stop", s.handleStopMonitoring)
			r.Post("/reset", s.handleResetMonitoring)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/keyword-listening", s.handleKeywordListening)
			r.Post("/sos", s.handleSOS)
		})

		r.Route("/permissions", func(r chi.Router) {
			r.Get("/", s.handleListPermissions)
			r.Post("/{capability}/request", s.handleRequestPermission)
		})

		r.Get("/zones", s.handleListZones)
		r.Get("/notifications", s.handleListNotifications)

		// WebSocket push of safety events
		r.Get("/ws", s.handleWebSocket)

		// Admin views
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/alerts", s.handleListAlerts)
			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
