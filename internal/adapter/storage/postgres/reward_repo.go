package postgres

import (
	"context"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RewardRepo implements ports.RewardRepository.
type RewardRepo struct {
	pool Pool
}

// NewRewardRepo creates a new RewardRepo.
func NewRewardRepo(pool Pool) *RewardRepo {
	return &RewardRepo{pool: pool}
}

// Upsert creates or overwrites the reward request for its composite key
// within a transaction. The achievement engine may re-create the same request
// on event redelivery; overwriting a PENDING row with an identical PENDING
// row is harmless.
func (r *RewardRepo) Upsert(ctx context.Context, tx pgx.Tx, req *domain.RewardRequest) error {
	query := `INSERT INTO reward_requests (user_id, achievement_id, status, reason, reward_amount, reward_currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			reward_amount = EXCLUDED.reward_amount,
			reward_currency = EXCLUDED.reward_currency,
			updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, query,
		req.UserID, req.AchievementID, req.Status, req.Reason,
		req.RewardAmount, req.RewardCurrency, req.CreatedAt, req.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert reward request: %w", err)
	}
	return nil
}

// ListPending returns up to limit unfulfilled reward requests, oldest first.
func (r *RewardRepo) ListPending(ctx context.Context, limit int) ([]domain.RewardRequest, error) {
	query := `SELECT user_id, achievement_id, status, reason, reward_amount, reward_currency, created_at, updated_at
		FROM reward_requests WHERE status = $1 ORDER BY created_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, domain.RewardStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending rewards: %w", err)
	}
	defer rows.Close()

	var requests []domain.RewardRequest
	for rows.Next() {
		var req domain.RewardRequest
		if err := rows.Scan(&req.UserID, &req.AchievementID, &req.Status, &req.Reason,
			&req.RewardAmount, &req.RewardCurrency, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reward request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reward requests: %w", err)
	}
	return requests, nil
}

// SetStatus updates the request status and reason.
func (r *RewardRepo) SetStatus(ctx context.Context, userID, achievementID uuid.UUID, status domain.RewardStatus, reason string) error {
	query := `UPDATE reward_requests SET status = $1, reason = $2, updated_at = NOW()
		WHERE user_id = $3 AND achievement_id = $4`

	tag, err := r.pool.Exec(ctx, query, status, reason, userID, achievementID)
	if err != nil {
		return fmt.Errorf("update reward status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reward request not found: %s/%s", userID, achievementID)
	}
	return nil
}
