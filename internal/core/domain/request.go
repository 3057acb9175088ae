package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestType is the kind of transaction request a user can submit.
type RequestType string

const (
	RequestDonation RequestType = "DONATION"
	RequestCashout  RequestType = "CASHOUT"
)

// RequestStatus is the lifecycle state of a transaction request.
// ACCEPTED and REJECTED are terminal for request processing; PAID and ERROR
// are used by reward fulfillment.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusAccepted RequestStatus = "ACCEPTED"
	RequestStatusRejected RequestStatus = "REJECTED"
	RequestStatusError    RequestStatus = "ERROR"
	RequestStatusPaid     RequestStatus = "PAID"
)

// IsTerminal reports whether the request has already been decided.
func (s RequestStatus) IsTerminal() bool {
	return s != RequestStatusPending
}

// TxRequest is a user-submitted donation or cashout request, processed
// exactly once by the request processor.
type TxRequest struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	Type      RequestType   `json:"type"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Target    string        `json:"target"` // case id for donations, account for cashouts
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
