package postgres

import (
	"context"
	"errors"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet within a database transaction. A concurrent
// insert of the same user wins silently; callers re-read under lock after.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (user_id, cashback_approved, cashback_pending, points_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		w.UserID, w.CashbackApproved, w.CashbackPending, w.PointsApproved,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// Get fetches a wallet by user id (without locking).
func (r *WalletRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT user_id, cashback_approved, cashback_pending, points_approved, created_at, updated_at
		FROM wallets WHERE user_id = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.CashbackApproved, &w.CashbackPending, &w.PointsApproved,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// GetForUpdate fetches a wallet with a pessimistic row lock.
// This MUST be called within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT user_id, cashback_approved, cashback_pending, points_approved, created_at, updated_at
		FROM wallets WHERE user_id = $1 FOR UPDATE`

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.CashbackApproved, &w.CashbackPending, &w.PointsApproved,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// SetPending overwrites the pending cashback balance within a transaction.
func (r *WalletRepo) SetPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, pending int64) error {
	query := `UPDATE wallets SET cashback_pending = $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := tx.Exec(ctx, query, pending, userID)
	if err != nil {
		return fmt.Errorf("set pending balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}

// AddApproved atomically increments the approved cashback balance within a
// transaction. The table's CHECK constraint keeps the balance non-negative.
func (r *WalletRepo) AddApproved(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) error {
	query := `UPDATE wallets SET cashback_approved = cashback_approved + $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := tx.Exec(ctx, query, delta, userID)
	if err != nil {
		return fmt.Errorf("add approved balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}

// AddPoints atomically increments the approved points balance within a
// transaction.
func (r *WalletRepo) AddPoints(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) error {
	query := `UPDATE wallets SET points_approved = points_approved + $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := tx.Exec(ctx, query, delta, userID)
	if err != nil {
		return fmt.Errorf("add points balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", userID)
	}
	return nil
}
