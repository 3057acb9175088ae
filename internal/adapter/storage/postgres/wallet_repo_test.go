package postgres

import (
	"context"
	"testing"
	"time"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWalletMock(t *testing.T) (pgxmock.PgxPoolIface, *WalletRepo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewWalletRepo(mock)
}

func TestWalletRepo_Get(t *testing.T) {
	mock, repo := newWalletMock(t)
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT user_id, cashback_approved, cashback_pending, points_approved, created_at, updated_at\s+FROM wallets WHERE user_id = \$1`).
		WithArgs(userID).
		WillReturnRows(pgxmock.
			NewRows([]string{"user_id", "cashback_approved", "cashback_pending", "points_approved", "created_at", "updated_at"}).
			AddRow(userID, int64(1500), int64(300), int64(20), now, now))

	w, err := repo.Get(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, int64(1500), w.CashbackApproved)
	assert.Equal(t, int64(300), w.CashbackPending)
	assert.Equal(t, int64(20), w.PointsApproved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetMissingReturnsNil(t *testing.T) {
	mock, repo := newWalletMock(t)
	userID := uuid.New()

	mock.ExpectQuery(`FROM wallets WHERE user_id = \$1`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))

	w, err := repo.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, w)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_CreateIgnoresConflict(t *testing.T) {
	mock, repo := newWalletMock(t)
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO wallets .+ON CONFLICT \(user_id\) DO NOTHING`).
		WithArgs(userID, int64(0), int64(0), int64(0), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, &domain.Wallet{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_AddApprovedMissingWallet(t *testing.T) {
	mock, repo := newWalletMock(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE wallets SET cashback_approved = cashback_approved \+ \$1`).
		WithArgs(int64(500), userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.AddApproved(context.Background(), tx, userID, 500)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not found")
	require.NoError(t, mock.ExpectationsWereMet())
}
