package service

import (
	"context"
	"fmt"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// rewardBatchSize bounds how many pending rewards one poll cycle picks up.
const rewardBatchSize = 50

// payoutFunc credits one reward in the payout currency it is registered for.
type payoutFunc func(ctx context.Context, req domain.RewardRequest, amount int64) error

// RewardServiceImpl implements ports.RewardFulfiller.
type RewardServiceImpl struct {
	rewardRepo ports.RewardRepository
	achRepo    ports.AchievementRepository
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	notifSvc   ports.NotificationService
	payouts    map[string]payoutFunc
	log        zerolog.Logger
}

// NewRewardService creates a new RewardServiceImpl.
func NewRewardService(
	rewardRepo ports.RewardRepository,
	achRepo ports.AchievementRepository,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	notifSvc ports.NotificationService,
	log zerolog.Logger,
) *RewardServiceImpl {
	s := &RewardServiceImpl{
		rewardRepo: rewardRepo,
		achRepo:    achRepo,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		notifSvc:   notifSvc,
		log:        log,
	}
	s.payouts = map[string]payoutFunc{
		domain.CurrencyPoints: s.creditPoints,
	}
	return s
}

// FulfillPending drains one batch of pending reward requests. A failing
// request is logged and retried on the next poll; it never blocks the batch.
func (s *RewardServiceImpl) FulfillPending(ctx context.Context) error {
	pending, err := s.rewardRepo.ListPending(ctx, rewardBatchSize)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list pending rewards: %w", err))
	}
	for _, req := range pending {
		if err := s.Fulfill(ctx, req); err != nil {
			s.log.Error().Err(err).
				Str("user_id", req.UserID.String()).
				Str("achievement_id", req.AchievementID.String()).
				Msg("reward fulfillment failed")
		}
	}
	return nil
}

// Fulfill pays out one reward request against the live achievement
// definition. The stored amount is only a snapshot; admins may have adjusted
// the reward between completion and payout, and the live value wins.
//
// The request is marked PAID before the credit lands. Should the credit be
// retried later anyway, the ledger key derived from (user, achievement)
// makes the payout at-most-once.
func (s *RewardServiceImpl) Fulfill(ctx context.Context, req domain.RewardRequest) error {
	ach, err := s.achRepo.Get(ctx, req.AchievementID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get achievement: %w", err))
	}
	if ach == nil {
		if err := s.rewardRepo.SetStatus(ctx, req.UserID, req.AchievementID, domain.RewardStatusError, "achievement no longer defined"); err != nil {
			return apperror.InternalError(fmt.Errorf("mark reward error: %w", err))
		}
		s.log.Warn().
			Str("achievement_id", req.AchievementID.String()).
			Msg("reward request references a deleted achievement")
		return nil
	}

	// An unknown currency parks the row as ERROR with the reason recorded.
	// ERROR is terminal: the row leaves the pending list and stays visible
	// for operators, instead of being silently marked paid with no payout.
	payout, ok := s.payouts[ach.Reward.Currency]
	if !ok {
		if err := s.rewardRepo.SetStatus(ctx, req.UserID, req.AchievementID, domain.RewardStatusError, "no payout strategy for currency "+ach.Reward.Currency); err != nil {
			return apperror.InternalError(fmt.Errorf("mark reward error: %w", err))
		}
		s.log.Warn().
			Str("achievement_id", req.AchievementID.String()).
			Str("currency", ach.Reward.Currency).
			Msg("no payout strategy for reward currency")
		return nil
	}

	if err := s.rewardRepo.SetStatus(ctx, req.UserID, req.AchievementID, domain.RewardStatusPaid, ""); err != nil {
		return apperror.InternalError(fmt.Errorf("mark reward paid: %w", err))
	}

	if err := payout(ctx, req, ach.Reward.Amount); err != nil {
		return err
	}

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("achievement_id", req.AchievementID.String()).
		Int64("amount", ach.Reward.Amount).
		Msg("reward paid out")

	s.notifSvc.NotifyUser(ctx, req.UserID, ports.Notification{
		Title: "Reward received",
		Body:  fmt.Sprintf("%d charity points for %s", ach.Reward.Amount, ach.Name),
		Type:  "reward",
	})
	return nil
}

// creditPoints writes the bonus ledger entry and credits the wallet's point
// balance in one transaction.
func (s *RewardServiceImpl) creditPoints(ctx context.Context, req domain.RewardRequest, amount int64) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		now := time.Now().UTC()
		fresh := &domain.Wallet{UserID: req.UserID, CreatedAt: now, UpdatedAt: now}
		if err := s.walletRepo.Create(ctx, dbTx, fresh); err != nil {
			return apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
	}

	entry := &domain.LedgerEntry{
		ID:         uuid.New(),
		UserID:     req.UserID,
		SourceTxID: req.Key(),
		Type:       domain.LedgerEntryBonus,
		Amount:     amount,
		Currency:   domain.CurrencyPoints,
		CreatedAt:  time.Now().UTC(),
	}
	inserted, err := s.ledgerRepo.Append(ctx, dbTx, entry)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("append reward entry: %w", err))
	}
	if inserted {
		if err := s.walletRepo.AddPoints(ctx, dbTx, req.UserID, amount); err != nil {
			return apperror.InternalError(fmt.Errorf("credit points: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
