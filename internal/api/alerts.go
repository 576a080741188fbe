package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/safewalk-core/internal/alert"
)

// Listing limits.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// handleListAlerts returns recent admin SOS alerts.
//
// GET /alerts?limit=N
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeUnavailable(w, "alert log not configured")
		return
	}

	alerts, err := s.alerts.Recent(r.Context(), listLimit(r))
	if err != nil {
		s.logger.Error("failed to list alerts", "error", err)
		writeInternalError(w, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []alert.AdminAlert{}
	}
	if c := claimsFromContext(r.Context()); c != nil {
		s.logger.Debug("alerts listed", "viewer", c.Subject, "count", len(alerts))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// handleListNotifications returns the signed-in user's notifications.
//
// GET /notifications?limit=N
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.session.CurrentUser()
	if !ok {
		writeUnauthorized(w, "not signed in")
		return
	}
	if s.notifications == nil {
		writeUnavailable(w, "notifications not configured")
		return
	}

	list, err := s.notifications.ListFor(r.Context(), userID, listLimit(r))
	if err != nil {
		s.logger.Error("failed to list notifications", "user_id", userID, "error", err)
		writeInternalError(w, "failed to list notifications")
		return
	}
	if list == nil {
		list = []alert.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list, "count": len(list)})
}

// listLimit parses the limit query parameter, clamped to maxListLimit.
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
