package ports

import (
	"context"

	"cashback-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// Reconciler diffs freshly fetched external commission data against the
// persisted per-user records and writes the minimal necessary update.
// Safe to re-run any number of times with overlapping data.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// LedgerUpdater reacts to a user's commission-set change by recomputing the
// pending balance and crediting newly paid commissions exactly once.
type LedgerUpdater interface {
	ApplyCommissionChange(ctx context.Context, userID uuid.UUID, current, previous []domain.Commission) error
	// CloseWallet donates out the remaining approved balance to the given
	// case and zeroes the wallet. Used on account deletion.
	CloseWallet(ctx context.Context, userID uuid.UUID, caseID string) error
}

// RequestProcessor runs the donation/cashout state machine for one request.
type RequestProcessor interface {
	Process(ctx context.Context, requestID uuid.UUID) (domain.RequestStatus, error)
}

// AchievementEngine advances idempotent per-user achievement progress for a
// domain event and emits reward requests on completion.
type AchievementEngine interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

// RewardFulfiller pays out pending reward requests against the live
// achievement definitions.
type RewardFulfiller interface {
	Fulfill(ctx context.Context, req domain.RewardRequest) error
	FulfillPending(ctx context.Context) error
}

// ClickRecorder stores affiliate clicks and feeds them to the achievement
// engine. Clicks double as the attribution fallback for lost user codes.
type ClickRecorder interface {
	RecordClick(ctx context.Context, click domain.Click) error
}

// NotificationService resolves a user's devices and sends a push message.
// Implementations never propagate delivery failures to mutation paths.
type NotificationService interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, n Notification)
}

// HealthChecker reports the availability of one infrastructure dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
