package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/safewalk-core/internal/geo"
	"github.com/nerrad567/safewalk-core/internal/zone"
)

// handleListZones returns the cached red zones.
//
// GET /zones
// Response: {"zones": [...], "count": N}
func (s *Server) handleListZones(w http.ResponseWriter, _ *http.Request) {
	if s.zones == nil {
		writeUnavailable(w, "red zones not configured")
		return
	}

	zones, err := s.zones.Zones()
	if err != nil {
		if errors.Is(err, zone.ErrNotLoaded) {
			writeUnavailable(w, "red zones not loaded yet")
			return
		}
		s.logger.Error("failed to list red zones", "error", err)
		writeInternalError(w, "failed to list red zones")
		return
	}
	if zones == nil {
		zones = []geo.Zone{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}
