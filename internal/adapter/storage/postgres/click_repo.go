package postgres

import (
	"context"
	"fmt"

	"cashback-ledger/internal/core/domain"
)

// ClickRepo implements ports.ClickRepository.
type ClickRepo struct {
	pool Pool
}

// NewClickRepo creates a new ClickRepo.
func NewClickRepo(pool Pool) *ClickRepo {
	return &ClickRepo{pool: pool}
}

// Record stores one affiliate click.
func (r *ClickRepo) Record(ctx context.Context, click *domain.Click) error {
	query := `INSERT INTO clicks (user_id, program_id, ip_address, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.pool.Exec(ctx, query,
		click.UserID, click.ProgramID, click.IPAddress, click.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

// FindUnique returns the click matching (ip, program) only when exactly one
// exists. More than one match is ambiguous and yields nil: attributing a
// commission to the wrong user is worse than parking it.
func (r *ClickRepo) FindUnique(ctx context.Context, ipAddress, programID string) (*domain.Click, error) {
	query := `SELECT user_id, program_id, ip_address, created_at
		FROM clicks WHERE ip_address = $1 AND program_id = $2 LIMIT 2`

	rows, err := r.pool.Query(ctx, query, ipAddress, programID)
	if err != nil {
		return nil, fmt.Errorf("find click: %w", err)
	}
	defer rows.Close()

	var clicks []domain.Click
	for rows.Next() {
		var c domain.Click
		if err := rows.Scan(&c.UserID, &c.ProgramID, &c.IPAddress, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		clicks = append(clicks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clicks: %w", err)
	}

	if len(clicks) != 1 {
		return nil, nil
	}
	return &clicks[0], nil
}
