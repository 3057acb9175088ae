package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProgressMock(t *testing.T) (pgxmock.PgxPoolIface, *ProgressRepo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewProgressRepo(mock)
}

func TestProgressRepo_IncrementReturnsNewCount(t *testing.T) {
	mock, repo := newProgressMock(t)
	userID, achID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT INTO user_achievements .+current_count = user_achievements\.current_count \+ 1`).
		WithArgs(userID, achID).
		WillReturnRows(pgxmock.NewRows([]string{"current_count"}).AddRow(int64(3)))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	count, ok, err := repo.Increment(context.Background(), tx, userID, achID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepo_IncrementBlockedByLatch(t *testing.T) {
	mock, repo := newProgressMock(t)
	userID, achID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO user_achievements`).
		WithArgs(userID, achID).
		WillReturnRows(pgxmock.NewRows([]string{"current_count"}))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, ok, err := repo.Increment(context.Background(), tx, userID, achID)
	require.NoError(t, err)
	assert.False(t, ok, "an achieved row must block the increment")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressRepo_MarkAchieved(t *testing.T) {
	mock, repo := newProgressMock(t)
	userID, achID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE user_achievements SET achieved = TRUE, achieved_at = \$3`).
		WithArgs(userID, achID, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.MarkAchieved(context.Background(), tx, userID, achID, now))
	require.NoError(t, mock.ExpectationsWereMet())
}
