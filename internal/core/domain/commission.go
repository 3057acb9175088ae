package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// CommissionStatus is the external lifecycle state of a commission.
// The feed is expected to move commissions forward through
// pending -> accepted -> paid (or -> rejected), but this is not enforced
// structurally; reconciliation treats any status change as significant.
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionAccepted CommissionStatus = "accepted"
	CommissionPaid     CommissionStatus = "paid"
	CommissionRejected CommissionStatus = "rejected"
)

// CommissionSource identifies where a commission came from.
type CommissionSource string

const (
	SourceAffiliate   CommissionSource = "affiliate"
	SourceMarketplace CommissionSource = "marketplace"
	SourceReferral    CommissionSource = "referral"
)

// Commission is a credit owed to a user from an affiliate sale or lead.
// OriginID is the external identifier and is unique per user; a referral
// cascade reuses the same OriginID on the referrer's side so that later
// reconciliation runs treat the derived commission as the same idempotent unit.
type Commission struct {
	UserID         uuid.UUID        `json:"user_id"`
	OriginID       string           `json:"origin_id"`
	OriginalAmount int64            `json:"original_amount"`
	Amount         int64            `json:"amount"`
	Currency       string           `json:"currency"`
	Status         CommissionStatus `json:"status"`
	Program        string           `json:"program"`
	Source         CommissionSource `json:"source"`
	Reason         string           `json:"reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsOpen reports whether the commission still counts toward pending balance.
func (c Commission) IsOpen() bool {
	return c.Status == CommissionPending || c.Status == CommissionAccepted
}

// NewReferralCommission derives the cascade commission owed to the user who
// referred the owner of the original commission. The derived amount is a
// fraction of the original (pre-split) amount.
func NewReferralCommission(original Commission, referrerID uuid.UUID, referralPercentage float64) Commission {
	derived := original
	derived.UserID = referrerID
	derived.Amount = int64(math.Round(float64(original.OriginalAmount) * referralPercentage))
	derived.Source = SourceReferral
	return derived
}

// DeadLetterCommission is a feed commission that could not be attributed to a
// known user. It is parked for manual resolution and never auto-retried.
type DeadLetterCommission struct {
	OriginID  string    `json:"origin_id"`
	Payload   []byte    `json:"payload"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
