package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal projection the ledger engine needs for attribution.
// Identity management itself lives outside the core.
type User struct {
	ID       uuid.UUID `json:"id"`
	FeedCode string    `json:"feed_code"` // code embedded in affiliate click tags
}

// Referral records that UserID signed up through ReferrerID's invite.
type Referral struct {
	UserID     uuid.UUID `json:"user_id"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Click is a user's visit to an affiliate program, recorded both for click
// achievements and as the IP-based attribution fallback for commissions that
// arrive without a user code.
type Click struct {
	UserID    uuid.UUID `json:"user_id"`
	ProgramID string    `json:"program_id"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

// CharityCase is a donation target carrying a running fund total.
type CharityCase struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Funds     int64     `json:"funds"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
