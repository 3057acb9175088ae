package postgres

import (
	"context"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository over the append-only
// wallet_transactions table.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Exists reports whether an entry with the same (user, source, type)
// dedup key was already recorded.
func (r *LedgerRepo) Exists(ctx context.Context, userID uuid.UUID, sourceTxID string, entryType domain.LedgerEntryType) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM wallet_transactions WHERE user_id = $1 AND source_tx_id = $2 AND tx_type = $3)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, sourceTxID, entryType).Scan(&exists); err != nil {
		return false, fmt.Errorf("check ledger entry: %w", err)
	}
	return exists, nil
}

// Append inserts the entry within a transaction unless its dedup key already
// exists. Returns false when nothing was written.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (bool, error) {
	query := `INSERT INTO wallet_transactions (id, user_id, source_tx_id, tx_type, amount, currency, target, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, source_tx_id, tx_type) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		entry.ID, entry.UserID, entry.SourceTxID, entry.Type,
		entry.Amount, entry.Currency, entry.Target, entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("append ledger entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns the user's full transaction log, oldest first.
func (r *LedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT id, user_id, source_tx_id, tx_type, amount, currency, target, created_at
		FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.SourceTxID, &e.Type,
			&e.Amount, &e.Currency, &e.Target, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}
