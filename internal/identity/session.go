package identity

import (
	"sync"
	"time"
)

// Session is the signed-in user. The zero value is not usable; call NewSession.
type Session struct {
	mu     sync.RWMutex
	secret string
	issuer string
	claims *Claims
	now    func() time.Time
}

// NewSession creates a signed-out session validating tokens with secret.
func NewSession(secret, issuer string) *Session {
	return &Session{secret: secret, issuer: issuer, now: time.Now}
}

// SignIn validates token and makes its subject the current user.
// A rejected token leaves the previous identity in place.
func (s *Session) SignIn(token string) (*Claims, error) {
	claims, err := ParseToken(token, s.secret, s.issuer, s.now)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.claims = claims
	s.mu.Unlock()
	return claims, nil
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.claims = nil
	s.mu.Unlock()
}

// CurrentUser returns the signed-in user's ID. An expired token counts as
// signed out.
func (s *Session) CurrentUser() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return "", false
	}
	if exp := s.claims.ExpiresAt; exp != nil && !s.now().Before(exp.Time) {
		return "", false
	}
	return s.claims.Subject, true
}

// Claims returns a copy of the current claims, or nil when signed out.
func (s *Session) Claims() *Claims {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return nil
	}
	c := *s.claims
	return &c
}
