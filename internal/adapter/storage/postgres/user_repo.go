package postgres

import (
	"context"
	"errors"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements ports.UserRepository over the users projection and the
// referrals table.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// GetByFeedCode resolves a user by the code embedded in affiliate click tags.
// Returns nil, nil when no user carries the code.
func (r *UserRepo) GetByFeedCode(ctx context.Context, feedCode string) (*domain.User, error) {
	query := `SELECT id, feed_code FROM users WHERE feed_code = $1`

	u := &domain.User{}
	err := r.pool.QueryRow(ctx, query, feedCode).Scan(&u.ID, &u.FeedCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by feed code: %w", err)
	}
	return u, nil
}

// GetReferral returns who invited the given user, or nil, nil when the user
// signed up without an invite.
func (r *UserRepo) GetReferral(ctx context.Context, userID uuid.UUID) (*domain.Referral, error) {
	query := `SELECT user_id, referrer_id, created_at FROM referrals WHERE user_id = $1`

	ref := &domain.Referral{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&ref.UserID, &ref.ReferrerID, &ref.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return ref, nil
}
