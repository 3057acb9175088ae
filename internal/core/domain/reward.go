package domain

import (
	"time"

	"github.com/google/uuid"
)

// RewardStatus is the lifecycle state of a reward request.
type RewardStatus string

const (
	RewardStatusPending RewardStatus = "PENDING"
	RewardStatusPaid    RewardStatus = "PAID"
	RewardStatusError   RewardStatus = "ERROR"
)

// RewardRequest asks fulfillment to pay out an achieved achievement.
// The composite key (UserID, AchievementID) guarantees at most one
// fulfillment per achievement per user; re-creating the same key is a safe
// overwrite. The reward amount stored here is a denormalized snapshot;
// fulfillment always re-reads the live achievement before paying.
type RewardRequest struct {
	UserID         uuid.UUID    `json:"user_id"`
	AchievementID  uuid.UUID    `json:"achievement_id"`
	Status         RewardStatus `json:"status"`
	Reason         string       `json:"reason,omitempty"`
	RewardAmount   int64        `json:"reward_amount"`
	RewardCurrency string       `json:"reward_currency"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Key returns the composite identifier used as the ledger source id when the
// reward is credited.
func (r RewardRequest) Key() string {
	return r.UserID.String() + "_" + r.AchievementID.String()
}
