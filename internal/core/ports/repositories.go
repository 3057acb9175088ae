package ports

import (
	"context"
	"time"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks; GetForUpdate
// takes a row lock so concurrent mutations of one user's wallet serialize.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error
	Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	SetPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, pending int64) error
	AddApproved(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) error
	AddPoints(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64) error
}

// LedgerRepository is the append-only wallet transaction log.
type LedgerRepository interface {
	// Exists reports whether an entry with the same (user, source, type) key
	// was already recorded.
	Exists(ctx context.Context, userID uuid.UUID, sourceTxID string, entryType domain.LedgerEntryType) (bool, error)
	// Append inserts the entry unless its dedup key already exists.
	// Returns false when the entry was a duplicate and nothing was written.
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error)
}

// CommissionRepository persists per-user commission records keyed by origin id.
type CommissionRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Commission, error)
	// UpsertBatch merge-writes the given commissions for one user. Sibling
	// commissions of the same user that are not in the batch stay untouched.
	UpsertBatch(ctx context.Context, userID uuid.UUID, commissions []domain.Commission) error
}

// DeadLetterRepository parks commissions that could not be attributed to a
// known user, pending manual resolution.
type DeadLetterRepository interface {
	Park(ctx context.Context, dl *domain.DeadLetterCommission) error
}

// RequestRepository defines persistence operations for transaction requests.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.TxRequest) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.TxRequest, error)
	// HasOtherPending reports whether any PENDING request other than excludeID
	// exists for the user.
	HasOtherPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, excludeID uuid.UUID) (bool, error)
	SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RequestStatus) error
}

// AchievementRepository reads the admin-managed achievement catalog.
type AchievementRepository interface {
	ListByType(ctx context.Context, eventType domain.EventType) ([]domain.Achievement, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Achievement, error)
}

// ProgressRepository persists per-user achievement progress and the
// counted-keys dedup set.
type ProgressRepository interface {
	Get(ctx context.Context, userID, achievementID uuid.UUID) (*domain.Progress, error)
	// Increment adds one to the counter within a transaction, creating the
	// row when missing. The row stays locked until the transaction ends, so
	// concurrent increments serialize. ok is false when the achieved latch
	// blocked the increment.
	Increment(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID) (count int64, ok bool, err error)
	// MarkAchieved flips the achieved latch within a transaction. A row that
	// is already achieved keeps its original achieved_at.
	MarkAchieved(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID, at time.Time) error
	// AddCountedKey inserts the entity key into the dedup set. Returns false
	// when the key was already counted and nothing was written.
	AddCountedKey(ctx context.Context, tx pgx.Tx, userID, achievementID uuid.UUID, entityKey string) (bool, error)
}

// RewardRepository persists reward requests keyed by (user, achievement).
type RewardRepository interface {
	// Upsert creates or overwrites the request for its composite key within a
	// transaction, so emission commits together with the progress update.
	Upsert(ctx context.Context, tx pgx.Tx, r *domain.RewardRequest) error
	ListPending(ctx context.Context, limit int) ([]domain.RewardRequest, error)
	SetStatus(ctx context.Context, userID, achievementID uuid.UUID, status domain.RewardStatus, reason string) error
}

// UserRepository is the attribution lookup surface of the users projection.
type UserRepository interface {
	GetByFeedCode(ctx context.Context, feedCode string) (*domain.User, error)
	GetReferral(ctx context.Context, userID uuid.UUID) (*domain.Referral, error)
}

// ClickRepository records affiliate clicks and supports the IP-based
// attribution fallback.
type ClickRepository interface {
	Record(ctx context.Context, click *domain.Click) error
	// FindUnique returns the click matching (ip, program) only when exactly
	// one exists; ambiguity returns nil.
	FindUnique(ctx context.Context, ipAddress, programID string) (*domain.Click, error)
}

// CaseRepository maintains donation-target fund totals.
type CaseRepository interface {
	Get(ctx context.Context, id string) (*domain.CharityCase, error)
	AddFunds(ctx context.Context, tx pgx.Tx, id string, delta int64) error
}

// DeviceTokenRepository resolves a user's push-notification device tokens.
type DeviceTokenRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// FeedStateRepository tracks the reconciliation watermark: commissions older
// than the stored instant are final and no longer fetched.
type FeedStateRepository interface {
	GetSince(ctx context.Context) (*time.Time, error)
	SetSince(ctx context.Context, since time.Time) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
