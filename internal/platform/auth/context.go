package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userEmailKey contextKey = "user_email"
	userRoleKey  contextKey = "user_role"
	sessionKey   contextKey = "session"
)

// WithIdentity attaches the authenticated identity to the context.
func WithIdentity(ctx context.Context, s *Session) context.Context {
	ctx = context.WithValue(ctx, userIDKey, s.UserID)
	ctx = context.WithValue(ctx, userEmailKey, s.Email)
	ctx = context.WithValue(ctx, userRoleKey, s.Role)
	return context.WithValue(ctx, sessionKey, s)
}

// UserIDFromContext returns the authenticated user id, or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

// EmailFromContext returns the authenticated user's email.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(userEmailKey).(string)
	return email
}

// RoleFromContext returns the authenticated user's role.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(userRoleKey).(string)
	return role
}

// SessionFromContext returns the active session, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}
