package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProgressRepo implements ports.ProgressRepository.
type ProgressRepo struct {
	pool Pool
}

// NewProgressRepo creates a new ProgressRepo.
func NewProgressRepo(pool Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

// Get fetches the user's progress for one achievement. Returns nil, nil when
// the user has no progress yet.
func (r *ProgressRepo) Get(ctx context.Context, userID, achievementID uuid.UUID) (*domain.Progress, error) {
	query := `SELECT user_id, achievement_id, current_count, achieved, achieved_at
		FROM user_achievements WHERE user_id = $1 AND achievement_id = $2`

	p := &domain.Progress{}
	err := r.pool.QueryRow(ctx, query, userID, achievementID).Scan(
		&p.UserID, &p.AchievementID, &p.CurrentCount, &p.Achieved, &p.AchievedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// Increment adds one to the counter within a transaction, inserting the row
// on first contact. The conflict arm computes the new count from the stored
// row under its lock, so concurrent increments never read a stale value. The
// achieved guard stops counting past the unlock; a blocked increment returns
// ok=false with no row written.
func (r *ProgressRepo) Increment(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID) (int64, bool, error) {
	query := `INSERT INTO user_achievements (user_id, achievement_id, current_count, achieved)
		VALUES ($1, $2, 1, FALSE)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			current_count = user_achievements.current_count + 1
		WHERE user_achievements.achieved = FALSE
		RETURNING current_count`

	var count int64
	err := tx.QueryRow(ctx, query, userID, achievementID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("increment progress: %w", err)
	}
	return count, true, nil
}

// MarkAchieved flips the achieved latch within a transaction. Re-marking an
// already achieved row is a no-op that keeps the original achieved_at.
func (r *ProgressRepo) MarkAchieved(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID, at time.Time) error {
	query := `UPDATE user_achievements SET achieved = TRUE, achieved_at = $3
		WHERE user_id = $1 AND achievement_id = $2 AND achieved = FALSE`

	if _, err := tx.Exec(ctx, query, userID, achievementID, at); err != nil {
		return fmt.Errorf("mark achieved: %w", err)
	}
	return nil
}

// AddCountedKey inserts the entity key into the dedup set within a
// transaction. Returns false when the key was already counted.
func (r *ProgressRepo) AddCountedKey(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID, entityKey string) (bool, error) {
	query := `INSERT INTO user_achievement_keys (user_id, achievement_id, entity_key)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	tag, err := tx.Exec(ctx, query, userID, achievementID, entityKey)
	if err != nil {
		return false, fmt.Errorf("add counted key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
