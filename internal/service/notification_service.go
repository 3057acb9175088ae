package service

import (
	"context"

	"cashback-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotificationServiceImpl implements ports.NotificationService.
type NotificationServiceImpl struct {
	tokenRepo ports.DeviceTokenRepository
	notifier  ports.Notifier
	log       zerolog.Logger
}

// NewNotificationService creates a new NotificationServiceImpl.
func NewNotificationService(
	tokenRepo ports.DeviceTokenRepository,
	notifier ports.Notifier,
	log zerolog.Logger,
) *NotificationServiceImpl {
	return &NotificationServiceImpl{
		tokenRepo: tokenRepo,
		notifier:  notifier,
		log:       log,
	}
}

// NotifyUser resolves the user's device tokens and sends the message.
// Delivery is best-effort: failures are logged and never surface to callers,
// so a failed push can never roll back or retry a committed balance change.
func (s *NotificationServiceImpl) NotifyUser(ctx context.Context, userID uuid.UUID, n ports.Notification) {
	tokens, err := s.tokenRepo.ListByUser(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to resolve device tokens")
		return
	}
	if len(tokens) == 0 {
		return
	}

	if err := s.notifier.Send(ctx, n, tokens); err != nil {
		s.log.Warn().Err(err).
			Str("user_id", userID.String()).
			Str("type", n.Type).
			Msg("push notification delivery failed")
		return
	}

	s.log.Debug().
		Str("user_id", userID.String()).
		Str("type", n.Type).
		Int("devices", len(tokens)).
		Msg("push notification sent")
}
