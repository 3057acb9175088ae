package postgres

import (
	"context"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// CommissionRepo implements ports.CommissionRepository.
type CommissionRepo struct {
	pool Pool
}

// NewCommissionRepo creates a new CommissionRepo.
func NewCommissionRepo(pool Pool) *CommissionRepo {
	return &CommissionRepo{pool: pool}
}

// ListByUser returns all persisted commissions of one user, oldest first.
func (r *CommissionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Commission, error) {
	query := `SELECT user_id, origin_id, original_amount, amount, currency, status, program, source, reason, created_at, updated_at
		FROM commissions WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	defer rows.Close()

	var commissions []domain.Commission
	for rows.Next() {
		var c domain.Commission
		if err := rows.Scan(&c.UserID, &c.OriginID, &c.OriginalAmount, &c.Amount,
			&c.Currency, &c.Status, &c.Program, &c.Source, &c.Reason,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		commissions = append(commissions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commissions: %w", err)
	}
	return commissions, nil
}

// UpsertBatch merge-writes the given commissions for one user in a single
// transaction. Rows are keyed by (user_id, origin_id); sibling commissions of
// the same user that are not part of the batch stay untouched.
func (r *CommissionRepo) UpsertBatch(ctx context.Context, userID uuid.UUID, commissions []domain.Commission) error {
	if len(commissions) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commission upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `INSERT INTO commissions (user_id, origin_id, original_amount, amount, currency, status, program, source, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, origin_id) DO UPDATE SET
			original_amount = EXCLUDED.original_amount,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			program = EXCLUDED.program,
			source = EXCLUDED.source,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at`

	for _, c := range commissions {
		if _, err := tx.Exec(ctx, query,
			userID, c.OriginID, c.OriginalAmount, c.Amount, c.Currency,
			c.Status, c.Program, c.Source, c.Reason, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert commission %s: %w", c.OriginID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit commission upsert: %w", err)
	}
	return nil
}
