package postgres

import (
	"context"
	"fmt"

	"cashback-ledger/internal/core/domain"
)

// DeadLetterRepo implements ports.DeadLetterRepository.
// Parked commissions wait for manual resolution and are never auto-retried.
type DeadLetterRepo struct {
	pool Pool
}

// NewDeadLetterRepo creates a new DeadLetterRepo.
func NewDeadLetterRepo(pool Pool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

// Park stores an unattributable commission. Re-parking the same origin id
// overwrites the previous payload, so overlapping feed batches stay quiet.
func (r *DeadLetterRepo) Park(ctx context.Context, dl *domain.DeadLetterCommission) error {
	query := `INSERT INTO incomplete_commissions (origin_id, payload, reason, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (origin_id) DO UPDATE SET payload = EXCLUDED.payload, reason = EXCLUDED.reason`

	if _, err := r.pool.Exec(ctx, query, dl.OriginID, dl.Payload, dl.Reason, dl.CreatedAt); err != nil {
		return fmt.Errorf("park commission: %w", err)
	}
	return nil
}
