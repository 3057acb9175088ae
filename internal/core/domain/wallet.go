package domain

import (
	"time"

	"github.com/google/uuid"
)

// Currency units used by the ledger. Cashback amounts are stored in minor
// units of the base currency; bonus points have their own unit.
const (
	CurrencyBase   = "RON"
	CurrencyPoints = "charitypoints"
)

// Wallet is the per-user balance record. ApprovedCashback must never go
// negative; PendingCashback is fully recomputed on every commission change.
type Wallet struct {
	UserID           uuid.UUID `json:"user_id"`
	CashbackApproved int64     `json:"cashback_approved"`
	CashbackPending  int64     `json:"cashback_pending"`
	PointsApproved   int64     `json:"points_approved"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// LedgerEntryType represents the kind of wallet movement.
type LedgerEntryType string

const (
	LedgerEntryCommission LedgerEntryType = "COMMISSION"
	LedgerEntryDonation   LedgerEntryType = "DONATION"
	LedgerEntryCashout    LedgerEntryType = "CASHOUT"
	LedgerEntryBonus      LedgerEntryType = "BONUS"
)

// LedgerEntry is one immutable row of a wallet's append-only transaction log.
// The pair (SourceTxID, Type) is unique per user and is the deduplication key
// that keeps crediting at-most-once under redelivery.
type LedgerEntry struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	SourceTxID string          `json:"source_tx_id"`
	Type       LedgerEntryType `json:"type"`
	Amount     int64           `json:"amount"`
	Currency   string          `json:"currency"`
	Target     string          `json:"target,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
