package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/sensor"
)

// permissionRequestTimeout bounds how long a request waits for the user to
// answer the platform prompt.
const permissionRequestTimeout = 30 * time.Second

// permissionResponse is the result of a permission request.
type permissionResponse struct {
	Capability sensor.Capability      `json:"capability"`
	State      sensor.PermissionState `json:"state"`
}

// handleListPermissions returns every capability's permission state.
//
// GET /permissions
func (s *Server) handleListPermissions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": s.permissions.Snapshot(),
		"gesture":     s.permissions.HasGesture(),
	})
}

// handleRequestPermission asks the device to prompt for a capability. The
// call comes from a user tap, so it also records the gesture.
//
// POST /permissions/{capability}/request
// Response: 200 with the settled state (including denied), 503 without a
// device transport, 504 if the user never answered.
func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	c, err := sensor.ParseCapability(chi.URLParam(r, "capability"))
	if err != nil {
		writeBadRequest(w, "unknown capability")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), permissionRequestTimeout)
	defer cancel()

	st, err := s.permissions.Request(ctx, c, true)
	switch {
	case err == nil,
		errors.Is(err, sensor.ErrPermissionDenied),
		errors.Is(err, sensor.ErrUnsupported):
	case errors.Is(err, sensor.ErrNoTransport):
		writeUnavailable(w, "device is not connected")
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, sensor.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "permission prompt was not answered")
		return
	case sensor.IsTransient(err):
		s.logger.Warn("permission request not delivered", "capability", c, "error", err)
		writeUnavailable(w, "device did not receive the request")
		return
	default:
		s.logger.Error("permission request failed", "capability", c, "error", err)
		writeInternalError(w, "permission request failed")
		return
	}

	s.auditLog(audit.ActionPermission, audit.EntitySensor, string(c), "", map[string]any{
		"state": string(st),
	})
	writeJSON(w, http.StatusOK, permissionResponse{Capability: c, State: st})
}
