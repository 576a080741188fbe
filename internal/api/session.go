package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/safewalk-core/internal/audit"
	"github.com/nerrad567/safewalk-core/internal/identity"
)

// signInRequest is the optional body of POST /auth/session. The token may
// instead come from the Authorization header.
type signInRequest struct {
	Token string `json:"token"`
}

// sessionResponse describes the signed-in user.
type sessionResponse struct {
	SignedIn  bool       `json:"signed_in"`
	UserID    string     `json:"user_id,omitempty"`
	Username  string     `json:"username,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleGetSession reports the current identity.
func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	if _, ok := s.session.CurrentUser(); !ok {
		writeJSON(w, http.StatusOK, sessionResponse{SignedIn: false})
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.session.Claims()))
}

// handleSignIn sets the app identity from a JWT. Contacts of this user are
// notified on future alerts.
//
// POST /auth/session
// Header: Authorization: Bearer <jwt>   (or body {"token": "<jwt>"})
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		var req signInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		token = req.Token
	}
	if token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	claims, err := s.session.SignIn(token)
	if err != nil {
		if errors.Is(err, identity.ErrTokenInvalid) {
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		s.logger.Error("sign in failed", "error", err)
		writeInternalError(w, "sign in failed")
		return
	}

	s.logger.Info("user signed in", "user_id", claims.Subject)
	s.auditLog(audit.ActionSignIn, audit.EntityUser, claims.Subject, claims.Subject, nil)
	writeJSON(w, http.StatusOK, newSessionResponse(claims))
}

// handleSignOut clears the identity.
func (s *Server) handleSignOut(w http.ResponseWriter, _ *http.Request) {
	userID, _ := s.session.CurrentUser()
	s.session.SignOut()
	if userID != "" {
		s.logger.Info("user signed out", "user_id", userID)
		s.auditLog(audit.ActionSignOut, audit.EntityUser, userID, userID, nil)
	}
	w.WriteHeader(http.StatusNoContent)
}

func newSessionResponse(c *identity.Claims) sessionResponse {
	if c == nil {
		return sessionResponse{}
	}
	resp := sessionResponse{
		SignedIn: true,
		UserID:   c.Subject,
		Username: c.Username,
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	return resp
}
