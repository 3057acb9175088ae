package service

import (
	"context"
	"fmt"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerUpdater.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	caseRepo   ports.CaseRepository
	transactor ports.DBTransactor
	notifSvc   ports.NotificationService
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	caseRepo ports.CaseRepository,
	transactor ports.DBTransactor,
	notifSvc ports.NotificationService,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		caseRepo:   caseRepo,
		transactor: transactor,
		notifSvc:   notifSvc,
		log:        log,
	}
}

// ApplyCommissionChange recomputes the user's pending balance from the full
// current commission set and credits paid commissions exactly once.
//
// Pending is a pure projection (sum over open commissions), so re-running
// with the same inputs converges. Credits go through the ledger's dedup key,
// so a commission that was already credited in an earlier run is skipped no
// matter how many times its record is rewritten afterwards.
func (s *LedgerServiceImpl) ApplyCommissionChange(ctx context.Context, userID uuid.UUID, current, previous []domain.Commission) error {
	newPending := int64(0)
	for _, c := range current {
		if c.IsOpen() {
			newPending += c.Amount
		}
	}

	// Pre-filter credit candidates before opening the transaction. A paid
	// commission keeps reappearing in every feed snapshot; checking the
	// ledger here keeps reruns from re-attempting inserts for rows that
	// were credited in past runs. Append's dedup key remains the authority
	// under concurrency.
	var candidates []domain.Commission
	for _, c := range current {
		if c.Status != domain.CommissionPaid {
			continue
		}
		already, err := s.ledgerRepo.Exists(ctx, userID, c.OriginID, domain.LedgerEntryCommission)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("check ledger entry %s: %w", c.OriginID, err))
		}
		if !already {
			candidates = append(candidates, c)
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if _, err := s.lockOrCreateWallet(ctx, dbTx, userID); err != nil {
		return err
	}

	if err := s.walletRepo.SetPending(ctx, dbTx, userID, newPending); err != nil {
		return apperror.InternalError(fmt.Errorf("set pending: %w", err))
	}

	now := time.Now().UTC()
	var credited []domain.Commission
	for _, c := range candidates {
		entry := &domain.LedgerEntry{
			ID:         uuid.New(),
			UserID:     userID,
			SourceTxID: c.OriginID,
			Type:       domain.LedgerEntryCommission,
			Amount:     c.Amount,
			Currency:   c.Currency,
			Target:     c.Program,
			CreatedAt:  now,
		}
		inserted, err := s.ledgerRepo.Append(ctx, dbTx, entry)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("append ledger entry %s: %w", c.OriginID, err))
		}
		if !inserted {
			continue
		}
		if err := s.walletRepo.AddApproved(ctx, dbTx, userID, c.Amount); err != nil {
			return apperror.InternalError(fmt.Errorf("credit approved: %w", err))
		}
		credited = append(credited, c)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Int64("pending", newPending).
		Int("credited", len(credited)).
		Msg("wallet updated from commission change")

	// Post-commit, best-effort notifications.
	prevByOrigin := make(map[string]domain.Commission, len(previous))
	for _, p := range previous {
		prevByOrigin[p.OriginID] = p
	}
	for _, c := range current {
		if _, seen := prevByOrigin[c.OriginID]; !seen && c.IsOpen() {
			s.notifSvc.NotifyUser(ctx, userID, ports.Notification{
				Title: "Cashback on the way",
				Body:  fmt.Sprintf("A new cashback of %.2f %s is pending.", float64(c.Amount)/100, c.Currency),
				Type:  "commission-pending",
			})
		}
	}
	for _, c := range credited {
		s.notifSvc.NotifyUser(ctx, userID, ports.Notification{
			Title: "Cashback received",
			Body:  fmt.Sprintf("%.2f %s was added to your available balance.", float64(c.Amount)/100, c.Currency),
			Type:  "commission-paid",
		})
	}

	return nil
}

// CloseWallet donates the remaining approved balance to the given case and
// zeroes the wallet. The close donation uses a per-user stable source id, so
// retrying after a crash cannot donate twice.
func (s *LedgerServiceImpl) CloseWallet(ctx context.Context, userID uuid.UUID, caseID string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrWalletNotFound()
	}

	if wallet.CashbackApproved > 0 {
		entry := &domain.LedgerEntry{
			ID:         uuid.New(),
			UserID:     userID,
			SourceTxID: "wallet-close-" + userID.String(),
			Type:       domain.LedgerEntryDonation,
			Amount:     wallet.CashbackApproved,
			Currency:   domain.CurrencyBase,
			Target:     caseID,
			CreatedAt:  time.Now().UTC(),
		}
		inserted, err := s.ledgerRepo.Append(ctx, dbTx, entry)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("append close donation: %w", err))
		}
		if inserted {
			if err := s.caseRepo.AddFunds(ctx, dbTx, caseID, wallet.CashbackApproved); err != nil {
				return apperror.InternalError(fmt.Errorf("add case funds: %w", err))
			}
		}
		if err := s.walletRepo.AddApproved(ctx, dbTx, userID, -wallet.CashbackApproved); err != nil {
			return apperror.InternalError(fmt.Errorf("zero approved: %w", err))
		}
	}
	if err := s.walletRepo.SetPending(ctx, dbTx, userID, 0); err != nil {
		return apperror.InternalError(fmt.Errorf("zero pending: %w", err))
	}
	if wallet.PointsApproved > 0 {
		if err := s.walletRepo.AddPoints(ctx, dbTx, userID, -wallet.PointsApproved); err != nil {
			return apperror.InternalError(fmt.Errorf("zero points: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("case_id", caseID).
		Int64("donated", wallet.CashbackApproved).
		Msg("wallet closed")

	return nil
}

// lockOrCreateWallet returns the user's wallet row locked for update,
// creating it first if this is the user's first commission. The insert is
// conflict-tolerant, so two concurrent first-time updates both end up locking
// the same row.
func (s *LedgerServiceImpl) lockOrCreateWallet(ctx context.Context, dbTx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}

	now := time.Now().UTC()
	fresh := &domain.Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.walletRepo.Create(ctx, dbTx, fresh); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	wallet, err = s.walletRepo.GetForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock created wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return wallet, nil
}
