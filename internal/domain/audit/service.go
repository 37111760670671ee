package audit

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/platform/auth"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Service) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// Record appends an audit entry, filling the actor from the request context.
// A write failure is logged and swallowed: auditing must never fail the
// operation it describes.
func (s *Service) Record(ctx context.Context, action, entity, entityID string, detail map[string]interface{}) {
	now := time.Now().UTC()
	e := &Entry{
		ID:         s.newID(now),
		ActorID:    auth.UserIDFromContext(ctx),
		ActorEmail: auth.EmailFromContext(ctx),
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  now,
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("entity", entity).Msg("append audit entry")
	}
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}
