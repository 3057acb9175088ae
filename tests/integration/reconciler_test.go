package integration

import (
	"context"
	"testing"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedCommission(originID, userCode string, amount int64, status domain.CommissionStatus, created, updated time.Time) ports.FeedCommission {
	return ports.FeedCommission{
		OriginID:       originID,
		UserCode:       userCode,
		ProgramID:      "prog-1",
		Program:        "Test Shop",
		OriginalAmount: amount,
		Currency:       domain.CurrencyBase,
		Status:         status,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
}

func TestReconcile_AttributesAndSplits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	e.users.addUser(domain.User{ID: userID, FeedCode: "code-1"})

	created := time.Now().UTC().Add(-time.Hour)
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-1", "code-1", 10000, domain.CommissionPending, created, created),
	}

	require.NoError(t, e.reconciler.Reconcile(ctx))

	comms, err := e.comms.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, "orig-1", comms[0].OriginID)
	assert.Equal(t, int64(10000), comms[0].OriginalAmount)
	assert.Equal(t, int64(6000), comms[0].Amount) // 60% user share
	assert.Equal(t, domain.CommissionPending, comms[0].Status)
	assert.Equal(t, domain.SourceAffiliate, comms[0].Source)

	wallet, err := e.wallets.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, int64(6000), wallet.CashbackPending)
	assert.Equal(t, int64(0), wallet.CashbackApproved)

	events := e.publisher.byType(domain.EventCommissionPending)
	require.Len(t, events, 1)
	assert.Equal(t, "orig-1", events[0].DedupKey)
}

func TestReconcile_SecondRunWritesNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	e.users.addUser(domain.User{ID: userID, FeedCode: "code-1"})

	created := time.Now().UTC().Add(-time.Hour)
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-1", "code-1", 10000, domain.CommissionPending, created, created),
	}

	require.NoError(t, e.reconciler.Reconcile(ctx))
	writesAfterFirst := e.comms.writeCount()

	require.NoError(t, e.reconciler.Reconcile(ctx))
	assert.Equal(t, writesAfterFirst, e.comms.writeCount(), "identical data must not be rewritten")

	wallet, err := e.wallets.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), wallet.CashbackPending)
}

func TestReconcile_PaidCommissionCreditsExactlyOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	e.users.addUser(domain.User{ID: userID, FeedCode: "code-1"})

	created := time.Now().UTC().Add(-2 * time.Hour)
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-1", "code-1", 10000, domain.CommissionPending, created, created),
	}
	require.NoError(t, e.reconciler.Reconcile(ctx))

	// The network settles the commission.
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-1", "code-1", 10000, domain.CommissionPaid, created, created.Add(time.Hour)),
	}
	require.NoError(t, e.reconciler.Reconcile(ctx))

	wallet, err := e.wallets.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), wallet.CashbackApproved)
	assert.Equal(t, int64(0), wallet.CashbackPending)

	entries, err := e.ledgerLog.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LedgerEntryCommission, entries[0].Type)
	assert.Equal(t, "orig-1", entries[0].SourceTxID)

	// Same paid data delivered again: no double credit.
	require.NoError(t, e.reconciler.Reconcile(ctx))
	wallet, err = e.wallets.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), wallet.CashbackApproved)
	entries, err = e.ledgerLog.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	paidEvents := e.publisher.byType(domain.EventCommissionPaid)
	assert.Len(t, paidEvents, 1)
}

func TestReconcile_StatusChangeAloneForcesRewrite(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	e.users.addUser(domain.User{ID: userID, FeedCode: "code-1"})

	created := time.Now().UTC().Add(-time.Hour)
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-1", "code-1", 10000, domain.CommissionPending, created, created),
	}
	require.NoError(t, e.reconciler.Reconcile(ctx))

	// Status flips but the network forgot to bump updated_at.
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-1", "code-1", 10000, domain.CommissionRejected, created, created),
	}
	require.NoError(t, e.reconciler.Reconcile(ctx))

	comms, err := e.comms.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, domain.CommissionRejected, comms[0].Status)

	wallet, err := e.wallets.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.CashbackPending, "rejected commission must leave pending")
}

func TestReconcile_ReferralCascade(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	referrerID := uuid.New()
	buyerID := uuid.New()
	e.users.addUser(domain.User{ID: referrerID, FeedCode: "code-ref"})
	e.users.addUser(domain.User{ID: buyerID, FeedCode: "code-buy"})
	e.users.addReferral(domain.Referral{UserID: buyerID, ReferrerID: referrerID})

	created := time.Now().UTC().Add(-time.Hour)
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-1", "code-buy", 10000, domain.CommissionPending, created, created),
	}
	require.NoError(t, e.reconciler.Reconcile(ctx))

	refComms, err := e.comms.ListByUser(ctx, referrerID)
	require.NoError(t, err)
	require.Len(t, refComms, 1)
	assert.Equal(t, "orig-1", refComms[0].OriginID, "cascade keeps the origin id")
	assert.Equal(t, int64(1000), refComms[0].Amount) // 10% of the original amount
	assert.Equal(t, domain.SourceReferral, refComms[0].Source)

	refWallet, err := e.wallets.Get(ctx, referrerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), refWallet.CashbackPending)
}

func TestReconcile_IPFallbackAttribution(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, e.clicks.Record(ctx, &domain.Click{
		UserID:    userID,
		ProgramID: "prog-1",
		IPAddress: "10.1.2.3",
		CreatedAt: time.Now().UTC(),
	}))

	created := time.Now().UTC().Add(-time.Hour)
	fc := feedCommission("orig-1", "", 10000, domain.CommissionPending, created, created)
	fc.SourceIP = "10.1.2.3"
	e.feed.commissions = []ports.FeedCommission{fc}

	require.NoError(t, e.reconciler.Reconcile(ctx))

	comms, err := e.comms.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, comms, 1, "unique click should attribute the commission")
	assert.Empty(t, e.dlq.parked)
}

func TestReconcile_AmbiguousIPGoesToDeadLetter(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// Two different users clicked the same program from the same IP.
	for _, id := range []uuid.UUID{uuid.New(), uuid.New()} {
		require.NoError(t, e.clicks.Record(ctx, &domain.Click{
			UserID: id, ProgramID: "prog-1", IPAddress: "10.1.2.3", CreatedAt: time.Now().UTC(),
		}))
	}

	created := time.Now().UTC().Add(-time.Hour)
	fc := feedCommission("orig-1", "", 10000, domain.CommissionPending, created, created)
	fc.SourceIP = "10.1.2.3"
	e.feed.commissions = []ports.FeedCommission{fc}

	require.NoError(t, e.reconciler.Reconcile(ctx))

	require.Contains(t, e.dlq.parked, "orig-1")
	assert.Equal(t, 0, e.comms.writeCount())
}

func TestReconcile_UnattributableParkedOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour)
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-lost", "unknown-code", 10000, domain.CommissionPending, created, created),
	}

	require.NoError(t, e.reconciler.Reconcile(ctx))
	require.NoError(t, e.reconciler.Reconcile(ctx))

	require.Len(t, e.dlq.parked, 1)
	require.Contains(t, e.dlq.parked, "orig-lost")
}

func TestReconcile_WatermarkTracksOldestOpen(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	userID := uuid.New()
	e.users.addUser(domain.User{ID: userID, FeedCode: "code-1"})

	oldCreated := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	newCreated := time.Now().UTC().Add(-1 * time.Hour).Truncate(time.Second)
	e.feed.commissions = []ports.FeedCommission{
		feedCommission("orig-old", "code-1", 5000, domain.CommissionAccepted, oldCreated, oldCreated),
		feedCommission("orig-new", "code-1", 5000, domain.CommissionPaid, newCreated, newCreated),
	}

	require.NoError(t, e.reconciler.Reconcile(ctx))

	since, err := e.state.GetSince(ctx)
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.True(t, since.Equal(oldCreated), "watermark must sit at the oldest still-open commission")
}

func TestReconcile_FeedFailureSurfaces(t *testing.T) {
	e := newTestEnv(t)
	e.feed.err = context.DeadlineExceeded

	err := e.reconciler.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REC_002")
}
