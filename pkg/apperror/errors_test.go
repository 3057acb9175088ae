package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	plain := New("REQ_002", "Invalid amount", http.StatusBadRequest)
	assert.Equal(t, "[REQ_002] Invalid amount", plain.Error())

	inner := errors.New("connection refused")
	wrapped := Wrap("SYS_002", "Database error", http.StatusInternalServerError, inner)
	assert.Equal(t, "[SYS_002] Database error: connection refused", wrapped.Error())
}

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap("SYS_001", "Internal error", http.StatusInternalServerError, inner)

	assert.ErrorIs(t, wrapped, inner)

	var appErr *AppError
	require.ErrorAs(t, fmt.Errorf("handling request: %w", wrapped), &appErr)
	assert.Equal(t, "SYS_001", appErr.Code)
}

func TestErrorConstructorsCarryHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *AppError
		code   string
		status int
	}{
		{ErrInsufficientFunds(), "REQ_001", http.StatusPaymentRequired},
		{ErrInvalidAmount(), "REQ_002", http.StatusBadRequest},
		{ErrConcurrentRequest(), "REQ_003", http.StatusConflict},
		{ErrBelowMinimumCashout(5000), "REQ_004", http.StatusBadRequest},
		{ErrUnknownRequestType("TRANSFER"), "REQ_005", http.StatusBadRequest},
		{ErrRequestNotFound(), "REQ_006", http.StatusNotFound},
		{ErrWalletNotFound(), "LED_001", http.StatusNotFound},
		{ErrDuplicateLedgerEntry(), "LED_002", http.StatusConflict},
		{ErrUnattributableCommission("origin-1"), "REC_001", http.StatusUnprocessableEntity},
		{ErrFeedUnavailable(errors.New("timeout")), "REC_002", http.StatusServiceUnavailable},
		{ErrUnknownConditionType("streak"), "ACH_001", http.StatusInternalServerError},
		{ErrAchievementNotFound("abc"), "ACH_002", http.StatusNotFound},
		{Validation("bad payload"), "VAL_001", http.StatusBadRequest},
		{InternalError(errors.New("boom")), "SYS_001", http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.HTTPStatus, "code %s", tc.code)
	}
}
