package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventType classifies domain events delivered to the achievement engine.
type EventType string

// Click, commission, donation and cashout events are published by this
// engine's own services. Invite and review events come from the user-facing
// platform, which pushes them onto the same queue when a referral signs up
// or a shop review is approved; here they are consume-only.
const (
	EventClick             EventType = "click"
	EventCommissionPending EventType = "commission-pending"
	EventCommissionPaid    EventType = "commission-paid"
	EventDonation          EventType = "donation"
	EventCashout           EventType = "cashout"
	EventInvite            EventType = "invite"
	EventReview            EventType = "review"
)

// Event is a domain event flowing through the achievement queue. Delivery is
// at-least-once: DedupKey identifies the underlying entity (shop id for
// clicks, commission origin id, invited-user id, ...) so a redelivered event
// counts progress at most once.
type Event struct {
	Type     EventType       `json:"type"`
	UserID   uuid.UUID       `json:"user_id"`
	DedupKey string          `json:"dedup_key"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}
