package ports

import (
	"context"
	"encoding/json"
	"time"

	"cashback-ledger/internal/core/domain"
)

//go:generate mockgen -source=collaborators.go -destination=mocks/collaborators_mock.go -package=mocks

// FeedCommission is one commission as reported by the affiliate network,
// before attribution and the user share split.
type FeedCommission struct {
	OriginID       string
	UserCode       string // feed-side user code; empty when the network lost the tag
	SourceIP       string // click source ip, used for fallback attribution
	ProgramID      string
	Program        string
	OriginalAmount int64
	Currency       string
	Status         domain.CommissionStatus
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Raw            json.RawMessage
}

// CommissionFeed fetches the externally reported commission set. The caller
// must tolerate overlapping or identical data across invocations; transient
// failures (rate limiting) are retried inside the implementation.
type CommissionFeed interface {
	FetchCommissions(ctx context.Context, since *time.Time) ([]FeedCommission, error)
}

// Notification is a push message addressed to a user's devices.
type Notification struct {
	Title string
	Body  string
	Type  string
}

// Notifier delivers push notifications. Delivery is best-effort: a returned
// error is logged by callers and never rolls back a committed mutation.
type Notifier interface {
	Send(ctx context.Context, n Notification, deviceTokens []string) error
}

// EventPublisher hands domain events to the achievement engine's queue.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// EventSource is the consuming side of the domain-event queue. Next blocks
// until an event arrives or ctx is done. Delivery is at-least-once.
type EventSource interface {
	Next(ctx context.Context) (*domain.Event, error)
}
