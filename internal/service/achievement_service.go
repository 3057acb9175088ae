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

// AchievementServiceImpl implements ports.AchievementEngine.
type AchievementServiceImpl struct {
	achRepo      ports.AchievementRepository
	progressRepo ports.ProgressRepository
	rewardRepo   ports.RewardRepository
	transactor   ports.DBTransactor
	notifSvc     ports.NotificationService
	log          zerolog.Logger
}

// NewAchievementService creates a new AchievementServiceImpl.
func NewAchievementService(
	achRepo ports.AchievementRepository,
	progressRepo ports.ProgressRepository,
	rewardRepo ports.RewardRepository,
	transactor ports.DBTransactor,
	notifSvc ports.NotificationService,
	log zerolog.Logger,
) *AchievementServiceImpl {
	return &AchievementServiceImpl{
		achRepo:      achRepo,
		progressRepo: progressRepo,
		rewardRepo:   rewardRepo,
		transactor:   transactor,
		notifSvc:     notifSvc,
		log:          log,
	}
}

// HandleEvent advances progress on every achievement listening to the event's
// type. One achievement failing never blocks its siblings; the event's dedup
// key keeps redelivered events from counting twice.
func (s *AchievementServiceImpl) HandleEvent(ctx context.Context, ev domain.Event) error {
	achievements, err := s.achRepo.ListByType(ctx, ev.Type)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list achievements for %s: %w", ev.Type, err))
	}
	if len(achievements) == 0 {
		return nil
	}

	failures := 0
	for _, ach := range achievements {
		if err := s.advance(ctx, ev, ach); err != nil {
			failures++
			s.log.Error().Err(err).
				Str("achievement_id", ach.ID.String()).
				Str("user_id", ev.UserID.String()).
				Str("event", string(ev.Type)).
				Msg("failed to advance achievement")
		}
	}
	if failures > 0 {
		return apperror.InternalError(fmt.Errorf("%d of %d achievements failed for event %s", failures, len(achievements), ev.Type))
	}
	return nil
}

// advance applies one event to one achievement. Condition types are checked
// before the dedup key is consumed: an unhandled type must fail loudly and
// leave the event countable by a fixed binary later.
func (s *AchievementServiceImpl) advance(ctx context.Context, ev domain.Event, ach domain.Achievement) error {
	for _, cond := range ach.Conditions {
		if cond.Type != domain.ConditionCount {
			return apperror.ErrUnknownConditionType(string(cond.Type))
		}
	}

	prev, err := s.progressRepo.Get(ctx, ev.UserID, ach.ID)
	if err != nil {
		return fmt.Errorf("get progress: %w", err)
	}
	// Achieved is a one-way latch; nothing left to count.
	if prev != nil && prev.Achieved {
		return nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	counted, err := s.progressRepo.AddCountedKey(ctx, dbTx, ev.UserID, ach.ID, ev.DedupKey)
	if err != nil {
		return fmt.Errorf("add counted key: %w", err)
	}
	if !counted {
		// Redelivery of an already-counted entity.
		return nil
	}

	// The stored row, not the pre-transaction read, is the count's source of
	// truth: the increment holds the row lock, so two events with distinct
	// dedup keys land as two increments no matter how their reads interleave.
	newCount, active, err := s.progressRepo.Increment(ctx, dbTx, ev.UserID, ach.ID)
	if err != nil {
		return fmt.Errorf("increment progress: %w", err)
	}
	if !active {
		// A concurrent event completed the achievement first.
		return dbTx.Commit(ctx)
	}

	achieved := true
	for _, cond := range ach.Conditions {
		if newCount < cond.Target {
			achieved = false
			break
		}
	}

	now := time.Now().UTC()
	if achieved {
		if err := s.progressRepo.MarkAchieved(ctx, dbTx, ev.UserID, ach.ID, now); err != nil {
			return fmt.Errorf("mark achieved: %w", err)
		}
		// Emit the reward request in the same transaction, so a completed
		// achievement can never miss its payout.
		reward := &domain.RewardRequest{
			UserID:         ev.UserID,
			AchievementID:  ach.ID,
			Status:         domain.RewardStatusPending,
			RewardAmount:   ach.Reward.Amount,
			RewardCurrency: ach.Reward.Currency,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.rewardRepo.Upsert(ctx, dbTx, reward); err != nil {
			return fmt.Errorf("upsert reward request: %w", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	if achieved {
		s.log.Info().
			Str("user_id", ev.UserID.String()).
			Str("achievement_id", ach.ID.String()).
			Str("name", ach.Name).
			Int64("count", newCount).
			Msg("achievement completed")

		s.notifSvc.NotifyUser(ctx, ev.UserID, ports.Notification{
			Title: "Achievement unlocked",
			Body:  ach.Name,
			Type:  "achievement",
		})
	} else {
		s.log.Debug().
			Str("user_id", ev.UserID.String()).
			Str("achievement_id", ach.ID.String()).
			Int64("count", newCount).
			Msg("achievement progress advanced")
	}
	return nil
}
