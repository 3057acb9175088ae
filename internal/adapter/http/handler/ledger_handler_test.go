package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	status domain.RequestStatus
	err    error
	seen   []uuid.UUID
}

func (s *stubProcessor) Process(ctx context.Context, requestID uuid.UUID) (domain.RequestStatus, error) {
	s.seen = append(s.seen, requestID)
	return s.status, s.err
}

type stubClickRecorder struct {
	clicks []domain.Click
	err    error
}

func (s *stubClickRecorder) RecordClick(ctx context.Context, click domain.Click) error {
	s.clicks = append(s.clicks, click)
	return s.err
}

type stubLedgerUpdater struct {
	closeErr error
	closed   []string
}

func (s *stubLedgerUpdater) ApplyCommissionChange(ctx context.Context, userID uuid.UUID, current, previous []domain.Commission) error {
	return nil
}

func (s *stubLedgerUpdater) CloseWallet(ctx context.Context, userID uuid.UUID, caseID string) error {
	s.closed = append(s.closed, caseID)
	return s.closeErr
}

type stubWalletRepo struct {
	ports.WalletRepository
	wallet *domain.Wallet
}

func (s *stubWalletRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return s.wallet, nil
}

type stubLedgerRepo struct {
	ports.LedgerRepository
	entries []domain.LedgerEntry
}

func (s *stubLedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	return s.entries, nil
}

type fixture struct {
	processor *stubProcessor
	clicks    *stubClickRecorder
	updater   *stubLedgerUpdater
	wallets   *stubWalletRepo
	entries   *stubLedgerRepo
	router    http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		processor: &stubProcessor{status: domain.RequestStatusAccepted},
		clicks:    &stubClickRecorder{},
		updater:   &stubLedgerUpdater{},
		wallets:   &stubWalletRepo{},
		entries:   &stubLedgerRepo{},
	}
	f.router = SetupRouter(RouterDeps{
		RequestProc:   f.processor,
		ClickRecorder: f.clicks,
		LedgerUpdater: f.updater,
		WalletRepo:    f.wallets,
		LedgerRepo:    f.entries,
		Logger:        zerolog.Nop(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestProcessRequestEndpoint(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	w := f.do(t, http.MethodPost, "/v1/requests/"+id.String()+"/process", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.processor.seen, 1)
	assert.Equal(t, id, f.processor.seen[0])

	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ACCEPTED", body.Data.Status)
	assert.NotEmpty(t, body.RequestID)
}

func TestProcessRequestEndpoint_BadID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/requests/not-a-uuid/process", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, f.processor.seen)
}

func TestProcessRequestEndpoint_ServiceErrorMapsStatus(t *testing.T) {
	f := newFixture(t)
	f.processor.err = apperror.ErrRequestNotFound()

	w := f.do(t, http.MethodPost, "/v1/requests/"+uuid.NewString()+"/process", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "REQ_006", body.ErrorCode)
	assert.NotEmpty(t, body.Message)
}

func TestRecordClickEndpoint(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	w := f.do(t, http.MethodPost, "/v1/clicks", map[string]any{
		"user_id":    userID,
		"program_id": "42",
		"ip_address": "10.0.0.1",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, f.clicks.clicks, 1)
	assert.Equal(t, userID, f.clicks.clicks[0].UserID)
	assert.Equal(t, "42", f.clicks.clicks[0].ProgramID)
}

func TestRecordClickEndpoint_MissingFields(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/clicks", map[string]any{"ip_address": "10.0.0.1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.clicks.clicks)
}

func TestGetWalletEndpoint(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	now := time.Now().UTC()
	f.wallets.wallet = &domain.Wallet{UserID: userID, CashbackApproved: 1500, CreatedAt: now, UpdatedAt: now}
	f.entries.entries = []domain.LedgerEntry{{ID: uuid.New(), UserID: userID, Amount: 1500}}

	w := f.do(t, http.MethodGet, "/v1/wallets/"+userID.String(), nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Wallet domain.Wallet        `json:"wallet"`
			Ledger []domain.LedgerEntry `json:"ledger"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1500), body.Data.Wallet.CashbackApproved)
	require.Len(t, body.Data.Ledger, 1)
}

func TestGetWalletEndpoint_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/wallets/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCloseWalletEndpoint(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	w := f.do(t, http.MethodPost, "/v1/wallets/"+userID.String()+"/close", map[string]any{"case_id": "case-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"case-1"}, f.updater.closed)
}

func TestCloseWalletEndpoint_UnknownWallet(t *testing.T) {
	f := newFixture(t)
	f.updater.closeErr = apperror.ErrWalletNotFound()

	w := f.do(t, http.MethodPost, "/v1/wallets/"+uuid.NewString()+"/close", map[string]any{"case_id": "case-1"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(ctx context.Context) error { return s.err }
func (s stubChecker) Name() string                   { return s.name }

func TestHealthEndpoint(t *testing.T) {
	router := SetupRouter(RouterDeps{
		RequestProc:   &stubProcessor{},
		ClickRecorder: &stubClickRecorder{},
		LedgerUpdater: &stubLedgerUpdater{},
		WalletRepo:    &stubWalletRepo{},
		LedgerRepo:    &stubLedgerRepo{},
		HealthCheckers: []ports.HealthChecker{
			stubChecker{name: "postgres"},
			stubChecker{name: "redis"},
		},
		Logger: zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	router := SetupRouter(RouterDeps{
		RequestProc:   &stubProcessor{},
		ClickRecorder: &stubClickRecorder{},
		LedgerUpdater: &stubLedgerUpdater{},
		WalletRepo:    &stubWalletRepo{},
		LedgerRepo:    &stubLedgerRepo{},
		HealthCheckers: []ports.HealthChecker{
			stubChecker{name: "postgres", err: errors.New("connection refused")},
		},
		Logger: zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
