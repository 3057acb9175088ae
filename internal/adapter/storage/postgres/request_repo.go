package postgres

import (
	"context"
	"errors"
	"fmt"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RequestRepo implements ports.RequestRepository.
type RequestRepo struct {
	pool Pool
}

// NewRequestRepo creates a new RequestRepo.
func NewRequestRepo(pool Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

// Create inserts a new transaction request.
func (r *RequestRepo) Create(ctx context.Context, req *domain.TxRequest) error {
	query := `INSERT INTO tx_requests (id, user_id, type, amount, currency, target, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.UserID, req.Type, req.Amount, req.Currency,
		req.Target, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetForUpdate fetches a request with a row lock so redelivered triggers for
// the same request serialize. MUST be called within a transaction.
func (r *RequestRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TxRequest, error) {
	query := `SELECT id, user_id, type, amount, currency, target, status, created_at, updated_at
		FROM tx_requests WHERE id = $1 FOR UPDATE`

	req := &domain.TxRequest{}
	err := tx.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.UserID, &req.Type, &req.Amount, &req.Currency,
		&req.Target, &req.Status, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get request for update: %w", err)
	}
	return req, nil
}

// HasOtherPending reports whether any PENDING request other than excludeID
// exists for the user.
func (r *RequestRepo) HasOtherPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, excludeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM tx_requests WHERE user_id = $1 AND status = $2 AND id <> $3)`

	var exists bool
	if err := tx.QueryRow(ctx, query, userID, domain.RequestStatusPending, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pending sibling: %w", err)
	}
	return exists, nil
}

// SetStatus updates the request status within a transaction.
func (r *RequestRepo) SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RequestStatus) error {
	query := `UPDATE tx_requests SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request not found: %s", id)
	}
	return nil
}
