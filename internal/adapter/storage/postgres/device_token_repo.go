package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DeviceTokenRepo implements ports.DeviceTokenRepository.
type DeviceTokenRepo struct {
	pool Pool
}

// NewDeviceTokenRepo creates a new DeviceTokenRepo.
func NewDeviceTokenRepo(pool Pool) *DeviceTokenRepo {
	return &DeviceTokenRepo{pool: pool}
}

// ListByUser returns all registered push tokens of one user.
func (r *DeviceTokenRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `SELECT token FROM device_tokens WHERE user_id = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device tokens: %w", err)
	}
	return tokens, nil
}
