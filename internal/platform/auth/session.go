package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionExpired means the rolling window elapsed; the client must
	// sign in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionNotFound means the session was revoked or never existed.
	ErrSessionNotFound = errors.New("session not found")
)

// Session is one signed-in browser session. LastSeen advances on every
// authenticated request; a session whose LastSeen is older than the
// configured window is terminated on its next evaluation.
type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	StartedAt time.Time `json:"started_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// Remaining returns how long the session has left in a window of the given
// duration, evaluated at now. Zero or negative means expired.
func (s *Session) Remaining(window time.Duration, now time.Time) time.Duration {
	return s.LastSeen.Add(window).Sub(now)
}

// Expired reports whether the rolling window elapsed before now.
func (s *Session) Expired(window time.Duration, now time.Time) bool {
	return s.Remaining(window, now) <= 0
}

// IsFresh reports whether the session started recently enough for
// credential-change operations (email/password updates).
func (s *Session) IsFresh(maxAge time.Duration, now time.Time) bool {
	return now.Sub(s.StartedAt) <= maxAge
}

// SessionStore validates and rolls sessions. The identity service implements
// it; the middleware depends only on this interface to avoid a cycle between
// the auth and identity packages.
type SessionStore interface {
	// Validate loads the session, terminating it with ErrSessionExpired if
	// the rolling window elapsed, and advancing LastSeen otherwise.
	Validate(ctx context.Context, sessionID uuid.UUID) (*Session, error)
}
