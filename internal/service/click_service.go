package service

import (
	"context"
	"fmt"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// ClickServiceImpl implements ports.ClickRecorder.
type ClickServiceImpl struct {
	clickRepo ports.ClickRepository
	publisher ports.EventPublisher
	log       zerolog.Logger
}

// NewClickService creates a new ClickServiceImpl.
func NewClickService(
	clickRepo ports.ClickRepository,
	publisher ports.EventPublisher,
	log zerolog.Logger,
) *ClickServiceImpl {
	return &ClickServiceImpl{
		clickRepo: clickRepo,
		publisher: publisher,
		log:       log,
	}
}

// RecordClick persists the click and hands it to the achievement engine.
// The program id is the dedup key: repeated clicks on the same program
// advance click achievements once.
func (s *ClickServiceImpl) RecordClick(ctx context.Context, click domain.Click) error {
	if click.CreatedAt.IsZero() {
		click.CreatedAt = time.Now().UTC()
	}
	if err := s.clickRepo.Record(ctx, &click); err != nil {
		return apperror.InternalError(fmt.Errorf("record click: %w", err))
	}

	ev := domain.Event{
		Type:     domain.EventClick,
		UserID:   click.UserID,
		DedupKey: click.ProgramID,
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("user_id", click.UserID.String()).
			Str("program_id", click.ProgramID).
			Msg("failed to publish click event")
	}
	return nil
}
