package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const defaultListLimit = 50

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	return s.repo.MarkRead(ctx, userID, id)
}

// HandleDeliverTask processes TaskTypeDeliver tasks. Redelivery of a stored
// notification is acknowledged without writing a second row.
func (s *Service) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notification: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RecipientID == "" {
		return fmt.Errorf("notification: missing recipient: %w", asynq.SkipRetry)
	}

	n, err := s.repo.Create(ctx, CreateParams{
		RecipientID: payload.RecipientID,
		Kind:        payload.Kind,
		Subject:     payload.Subject,
		Message:     payload.Message,
		ReferenceID: payload.ReferenceID,
		DedupeKey:   payload.DedupeKey(),
	})
	if errors.Is(err, ErrDuplicate) {
		s.logger.Info("notification: duplicate delivery ignored", "dedupe_key", payload.DedupeKey())
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("notification: delivered",
		"notification_id", n.ID,
		"recipient_id", n.RecipientID,
		"kind", n.Kind,
	)
	return nil
}
