package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/safewalk-core/internal/alert"
	"github.com/nerrad567/safewalk-core/internal/monitor"
)

// dispatchTimeout bounds an alert dispatch started by a request.
const dispatchTimeout = 30 * time.Second

// confirmRequest is the body of POST /safety/confirm.
type confirmRequest struct {
	Safe *bool `json:"safe"`
}

// sosRequest is the optional body of POST /safety/sos.
type sosRequest struct {
	Message string `json:"message"`
}

// handleSafetyStatus returns the UI status object.
//
// GET /safety/status
func (s *Server) handleSafetyStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleSystemStatus returns the diagnostics snapshot.
//
// GET /safety/system
func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.SystemStatus())
}

// handleStartMonitoring forces a monitoring session (debug).
func (s *Server) handleStartMonitoring(w http.ResponseWriter, _ *http.Request) {
	s.monitor.Start()
	s.logger.Info("safety monitoring started from API")
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleStopMonitoring ends the current session.
func (s *Server) handleStopMonitoring(w http.ResponseWriter, _ *http.Request) {
	s.monitor.Stop()
	s.logger.Info("safety monitoring stopped from API")
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleResetMonitoring forces the monitor back to idle.
func (s *Server) handleResetMonitoring(w http.ResponseWriter, _ *http.Request) {
	s.monitor.Reset()
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleConfirm answers the accident prompt.
//
// POST /safety/confirm
// Body: {"safe": true|false}
// Response: 200 {"status":"dismissed"} when safe, 200 with the dispatch
// report when help was requested, 502 with the report if nothing was
// delivered, 409 when no prompt is pending.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Safe == nil {
		writeBadRequest(w, "safe is required")
		return
	}

	ctx, cancel := dispatchContext(r)
	defer cancel()

	report, err := s.monitor.Confirm(ctx, *req.Safe)
	if errors.Is(err, monitor.ErrNothingPending) {
		writeConflict(w, "no accident confirmation is pending")
		return
	}
	if *req.Safe && err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
		return
	}
	s.writeDispatchResult(w, report, err)
}

// handleKeywordListening turns on emergency keyword detection.
func (s *Server) handleKeywordListening(w http.ResponseWriter, _ *http.Request) {
	if err := s.monitor.EnableKeywordListening(); err != nil {
		if errors.Is(err, monitor.ErrNotMonitoring) {
			writeConflict(w, "safety monitoring is not active")
			return
		}
		s.logger.Error("enabling keyword listening failed", "error", err)
		writeInternalError(w, "failed to enable keyword listening")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keywordListening": true})
}

// handleSOS sends a manual SOS. The body is optional.
//
// POST /safety/sos
// Body: {"message": "..."}
func (s *Server) handleSOS(w http.ResponseWriter, r *http.Request) {
	var req sosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := dispatchContext(r)
	defer cancel()

	report, err := s.monitor.TriggerSOS(ctx, req.Message)
	s.writeDispatchResult(w, report, err)
}

// dispatchContext keeps the request's values but not its cancellation: an
// alert the user asked for is delivered even if the client goes away.
func dispatchContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), dispatchTimeout)
}

// writeDispatchResult maps a dispatch outcome to a response. Partial
// delivery is still a success; the report says what failed.
func (s *Server) writeDispatchResult(w http.ResponseWriter, report *alert.Report, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, alert.ErrDispatchFailed):
		s.logger.Error("alert dispatch failed", "error", err)
		writeDispatchFailure(w, "alert could not be delivered", report)
	case errors.Is(err, monitor.ErrNoDispatcher):
		writeUnavailable(w, "alert dispatch is not configured")
	default:
		s.logger.Error("alert dispatch error", "error", err)
		writeInternalError(w, "alert dispatch error")
	}
}
