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

func newLedgerMock(t *testing.T) (pgxmock.PgxPoolIface, *LedgerRepo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewLedgerRepo(mock)
}

func sampleEntry(userID uuid.UUID) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:         uuid.New(),
		UserID:     userID,
		SourceTxID: "origin-1",
		Type:       domain.LedgerEntryCommission,
		Amount:     1500,
		Currency:   domain.CurrencyBase,
		Target:     "Partner Store",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestLedgerRepo_AppendInserts(t *testing.T) {
	mock, repo := newLedgerMock(t)
	entry := sampleEntry(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO wallet_transactions .+ON CONFLICT \(user_id, source_tx_id, tx_type\) DO NOTHING`).
		WithArgs(entry.ID, entry.UserID, entry.SourceTxID, entry.Type,
			entry.Amount, entry.Currency, entry.Target, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	inserted, err := repo.Append(context.Background(), tx, entry)
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_AppendDuplicateReportsFalse(t *testing.T) {
	mock, repo := newLedgerMock(t)
	entry := sampleEntry(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO wallet_transactions`).
		WithArgs(entry.ID, entry.UserID, entry.SourceTxID, entry.Type,
			entry.Amount, entry.Currency, entry.Target, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	inserted, err := repo.Append(context.Background(), tx, entry)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Exists(t *testing.T) {
	mock, repo := newLedgerMock(t)
	userID := uuid.New()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(userID, "origin-1", domain.LedgerEntryCommission).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), userID, "origin-1", domain.LedgerEntryCommission)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByUser(t *testing.T) {
	mock, repo := newLedgerMock(t)
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM wallet_transactions WHERE user_id = \$1 ORDER BY created_at`).
		WithArgs(userID).
		WillReturnRows(pgxmock.
			NewRows([]string{"id", "user_id", "source_tx_id", "tx_type", "amount", "currency", "target", "created_at"}).
			AddRow(uuid.New(), userID, "origin-1", domain.LedgerEntryCommission, int64(1500), "RON", "Partner Store", now).
			AddRow(uuid.New(), userID, "req-1", domain.LedgerEntryDonation, int64(-1000), "RON", "case-1", now))

	entries, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.LedgerEntryCommission, entries[0].Type)
	assert.Equal(t, int64(-1000), entries[1].Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}
