package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AchievementRepo implements ports.AchievementRepository. The catalog is
// admin-managed and read-only to the core.
type AchievementRepo struct {
	pool Pool
}

// NewAchievementRepo creates a new AchievementRepo.
func NewAchievementRepo(pool Pool) *AchievementRepo {
	return &AchievementRepo{pool: pool}
}

const achievementColumns = `id, name, description, badge, type, ord, conditions, reward_amount, reward_currency`

func scanAchievement(row pgx.Row) (*domain.Achievement, error) {
	a := &domain.Achievement{}
	var conditions []byte
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Badge, &a.Type,
		&a.Order, &conditions, &a.Reward.Amount, &a.Reward.Currency)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &a.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	return a, nil
}

// ListByType returns all achievements configured for the given event type,
// ordered for display.
func (r *AchievementRepo) ListByType(ctx context.Context, eventType domain.EventType) ([]domain.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements WHERE type = $1 ORDER BY ord`

	rows, err := r.pool.Query(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var achievements []domain.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		achievements = append(achievements, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate achievements: %w", err)
	}
	return achievements, nil
}

// Get fetches one achievement by id. Returns nil, nil when it does not exist
// (e.g. deleted by an admin after a reward request was created).
func (r *AchievementRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements WHERE id = $1`

	a, err := scanAchievement(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get achievement: %w", err)
	}
	return a, nil
}
