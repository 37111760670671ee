package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinerva/clinerva/internal/platform/auth"
)

// Repository persists users and their sessions.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	UpdateCertificate(ctx context.Context, id uuid.UUID, blobID string) error
	ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error)
	ListActiveUserIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error)

	CreateSession(ctx context.Context, s *auth.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*auth.Session, error)
	TouchSession(ctx context.Context, id uuid.UUID, lastSeen time.Time) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error
	DeleteSessionsIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}
