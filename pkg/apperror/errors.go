package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured, coded error used across the ledger engine.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed outward)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Transaction Requests (REQ) ----

func ErrInsufficientFunds() *AppError {
	return New("REQ_001", "Insufficient approved balance", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New("REQ_002", "Amount must be positive", http.StatusBadRequest)
}

func ErrConcurrentRequest() *AppError {
	return New("REQ_003", "Another pending request exists for this user", http.StatusConflict)
}

func ErrBelowMinimumCashout(minimum int64) *AppError {
	return New("REQ_004", fmt.Sprintf("Cashout amount below minimum of %d", minimum), http.StatusBadRequest)
}

func ErrUnknownRequestType(requestType string) *AppError {
	return New("REQ_005", fmt.Sprintf("Unknown request type %q", requestType), http.StatusBadRequest)
}

func ErrRequestNotFound() *AppError {
	return New("REQ_006", "Transaction request not found", http.StatusNotFound)
}

// ---- Wallet Ledger (LED) ----

func ErrWalletNotFound() *AppError {
	return New("LED_001", "Wallet not found", http.StatusNotFound)
}

func ErrDuplicateLedgerEntry() *AppError {
	return New("LED_002", "Ledger entry already recorded for this source", http.StatusConflict)
}

// ---- Reconciliation (REC) ----

func ErrUnattributableCommission(originID string) *AppError {
	return New("REC_001", fmt.Sprintf("No user resolvable for commission %s", originID), http.StatusUnprocessableEntity)
}

func ErrFeedUnavailable(err error) *AppError {
	return Wrap("REC_002", "Commission feed unavailable", http.StatusServiceUnavailable, err)
}

// ---- Achievements (ACH) ----

func ErrUnknownConditionType(conditionType string) *AppError {
	return New("ACH_001", fmt.Sprintf("Unhandled achievement condition type %q", conditionType), http.StatusInternalServerError)
}

func ErrAchievementNotFound(achievementID string) *AppError {
	return New("ACH_002", fmt.Sprintf("Achievement %s not found", achievementID), http.StatusNotFound)
}

// Validation creates a generic request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal error", http.StatusInternalServerError, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_002", "Internal database error", http.StatusInternalServerError, err)
}
