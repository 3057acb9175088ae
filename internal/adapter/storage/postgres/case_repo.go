package postgres

import (
	"context"
	"errors"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// CaseRepo implements ports.CaseRepository.
type CaseRepo struct {
	pool Pool
}

// NewCaseRepo creates a new CaseRepo.
func NewCaseRepo(pool Pool) *CaseRepo {
	return &CaseRepo{pool: pool}
}

// Get fetches a charity case by id. Returns nil, nil when it does not exist.
func (r *CaseRepo) Get(ctx context.Context, id string) (*domain.CharityCase, error) {
	query := `SELECT id, title, funds, created_at, updated_at FROM charity_cases WHERE id = $1`

	c := &domain.CharityCase{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Title, &c.Funds, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get charity case: %w", err)
	}
	return c, nil
}

// AddFunds atomically increments the case's fund total within a transaction.
func (r *CaseRepo) AddFunds(ctx context.Context, tx pgx.Tx, id string, delta int64) error {
	query := `UPDATE charity_cases SET funds = funds + $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("add case funds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("charity case not found: %s", id)
	}
	return nil
}
