package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/platform/ws"
)

var ErrNotificationNotFound = errors.New("notification not found")

type Service struct {
	repo   Repository
	events ws.EventPublisher
	logger zerolog.Logger
}

func NewService(repo Repository, events ws.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, events: events, logger: logger}
}

// Notify stores the notification and pushes it to the recipient's live
// channel. A publish failure is logged only; the stored row is the source of
// truth and shows up at the next poll.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if s.events != nil {
		payload, err := json.Marshal(n)
		if err != nil {
			s.logger.Warn().Err(err).Str("recipient", n.RecipientID.String()).Msg("encode notification")
			return nil
		}
		err = s.events.Publish(ctx, ws.Event{
			Type:      "notification",
			Topic:     ws.UserTopic(n.RecipientID),
			Timestamp: n.CreatedAt,
			Data:      payload,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("recipient", n.RecipientID.String()).Msg("publish notification")
		}
	}
	return nil
}

// NotifyMany fans one message out to several recipients, each getting their
// own row so read state stays per person.
func (s *Service) NotifyMany(ctx context.Context, recipients []uuid.UUID, typ, title, body string, data map[string]interface{}) error {
	for _, rid := range recipients {
		n := &Notification{RecipientID: rid, Type: typ, Title: title, Body: body, Data: data}
		if err := s.Notify(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.ListByRecipient(ctx, recipientID, unreadOnly, limit, offset)
}

func (s *Service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, recipientID)
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, recipientID)
}

func (s *Service) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

// PruneOld drops notifications past the retention window. Run by the nightly
// maintenance job.
func (s *Service) PruneOld(ctx context.Context, days int) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, days)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("pruned", n).Msg("old notifications pruned")
	}
	return n, nil
}
