package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FeedStateRepo implements ports.FeedStateRepository over a single-row table
// holding the reconciliation watermark.
type FeedStateRepo struct {
	pool Pool
}

// NewFeedStateRepo creates a new FeedStateRepo.
func NewFeedStateRepo(pool Pool) *FeedStateRepo {
	return &FeedStateRepo{pool: pool}
}

// GetSince returns the stored watermark, or nil, nil before the first run.
func (r *FeedStateRepo) GetSince(ctx context.Context) (*time.Time, error) {
	query := `SELECT since FROM feed_state WHERE id = 1`

	var since time.Time
	err := r.pool.QueryRow(ctx, query).Scan(&since)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get feed watermark: %w", err)
	}
	return &since, nil
}

// SetSince stores the watermark.
func (r *FeedStateRepo) SetSince(ctx context.Context, since time.Time) error {
	query := `INSERT INTO feed_state (id, since) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET since = EXCLUDED.since`

	if _, err := r.pool.Exec(ctx, query, since); err != nil {
		return fmt.Errorf("set feed watermark: %w", err)
	}
	return nil
}
