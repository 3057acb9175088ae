package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// requestHandler applies one request type's wallet mutation. validate runs
// before any money moves; apply runs with the wallet row already locked and
// sufficient funds confirmed.
type requestHandler interface {
	validate(req *domain.TxRequest) *apperror.AppError
	apply(ctx context.Context, dbTx pgx.Tx, req *domain.TxRequest) error
}

// RequestServiceImpl implements ports.RequestProcessor.
type RequestServiceImpl struct {
	reqRepo    ports.RequestRepository
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	notifSvc   ports.NotificationService
	publisher  ports.EventPublisher
	handlers   map[domain.RequestType]requestHandler
	log        zerolog.Logger
}

// NewRequestService creates a new RequestServiceImpl.
func NewRequestService(
	reqRepo ports.RequestRepository,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	caseRepo ports.CaseRepository,
	transactor ports.DBTransactor,
	notifSvc ports.NotificationService,
	publisher ports.EventPublisher,
	minCashout int64,
	bonusPct float64,
	log zerolog.Logger,
) *RequestServiceImpl {
	return &RequestServiceImpl{
		reqRepo:    reqRepo,
		walletRepo: walletRepo,
		transactor: transactor,
		notifSvc:   notifSvc,
		publisher:  publisher,
		handlers: map[domain.RequestType]requestHandler{
			domain.RequestDonation: &donationHandler{
				walletRepo: walletRepo,
				ledgerRepo: ledgerRepo,
				caseRepo:   caseRepo,
				bonusPct:   bonusPct,
			},
			domain.RequestCashout: &cashoutHandler{
				walletRepo: walletRepo,
				ledgerRepo: ledgerRepo,
				minAmount:  minCashout,
			},
		},
		log: log,
	}
}

// Process runs the donation/cashout state machine for one request.
//
// The request row is locked first, then the wallet row; every concurrent
// attempt for the same user serializes on those locks. A request already in
// a terminal state is returned as-is without touching anything, which makes
// redelivery of the same request id a no-op. Validation failures decide the
// request as REJECTED and return a nil error; only infrastructure failures
// propagate.
func (s *RequestServiceImpl) Process(ctx context.Context, requestID uuid.UUID) (domain.RequestStatus, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	req, err := s.reqRepo.GetForUpdate(ctx, dbTx, requestID)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("lock request: %w", err))
	}
	if req == nil {
		return "", apperror.ErrRequestNotFound()
	}
	if req.Status.IsTerminal() {
		s.log.Debug().
			Str("request_id", req.ID.String()).
			Str("status", string(req.Status)).
			Msg("request already decided, skipping")
		return req.Status, nil
	}

	if req.Amount <= 0 {
		return s.reject(ctx, dbTx, req, apperror.ErrInvalidAmount())
	}
	handler, ok := s.handlers[req.Type]
	if !ok {
		return s.reject(ctx, dbTx, req, apperror.ErrUnknownRequestType(string(req.Type)))
	}
	if apErr := handler.validate(req); apErr != nil {
		return s.reject(ctx, dbTx, req, apErr)
	}

	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return s.reject(ctx, dbTx, req, apperror.ErrWalletNotFound())
	}

	otherPending, err := s.reqRepo.HasOtherPending(ctx, dbTx, req.UserID, req.ID)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("check sibling requests: %w", err))
	}
	if otherPending {
		return s.reject(ctx, dbTx, req, apperror.ErrConcurrentRequest())
	}

	if wallet.CashbackApproved < req.Amount {
		return s.reject(ctx, dbTx, req, apperror.ErrInsufficientFunds())
	}

	if err := handler.apply(ctx, dbTx, req); err != nil {
		return "", err
	}
	if err := s.reqRepo.SetStatus(ctx, dbTx, req.ID, domain.RequestStatusAccepted); err != nil {
		return "", apperror.InternalError(fmt.Errorf("accept request: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return "", apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("request_id", req.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("type", string(req.Type)).
		Int64("amount", req.Amount).
		Msg("request accepted")

	s.afterAccept(ctx, req)
	return domain.RequestStatusAccepted, nil
}

// reject decides the request as REJECTED and commits. The reason stays in
// the logs; rejection is a handled outcome, not an error.
func (s *RequestServiceImpl) reject(ctx context.Context, dbTx pgx.Tx, req *domain.TxRequest, reason *apperror.AppError) (domain.RequestStatus, error) {
	if err := s.reqRepo.SetStatus(ctx, dbTx, req.ID, domain.RequestStatusRejected); err != nil {
		return "", apperror.InternalError(fmt.Errorf("reject request: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return "", apperror.InternalError(fmt.Errorf("commit rejection: %w", err))
	}

	s.log.Warn().
		Str("request_id", req.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("type", string(req.Type)).
		Str("code", reason.Code).
		Msg("request rejected: " + reason.Message)

	s.notifSvc.NotifyUser(ctx, req.UserID, ports.Notification{
		Title: "Request rejected",
		Body:  reason.Message,
		Type:  "request-" + string(req.Type),
	})
	return domain.RequestStatusRejected, nil
}

// afterAccept publishes the achievement event and notifies the user.
// Both are best-effort and happen only after the commit.
func (s *RequestServiceImpl) afterAccept(ctx context.Context, req *domain.TxRequest) {
	evType := domain.EventDonation
	title := "Donation accepted"
	body := fmt.Sprintf("Thank you! Your donation of %.2f %s was accepted.", float64(req.Amount)/100, domain.CurrencyBase)
	if req.Type == domain.RequestCashout {
		evType = domain.EventCashout
		title = "Cashout accepted"
		body = fmt.Sprintf("Your cashout of %.2f %s is being transferred.", float64(req.Amount)/100, domain.CurrencyBase)
	}

	ev := domain.Event{
		Type:     evType,
		UserID:   req.UserID,
		DedupKey: req.ID.String(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", req.ID.String()).
			Str("event", string(evType)).
			Msg("failed to publish request event")
	}

	s.notifSvc.NotifyUser(ctx, req.UserID, ports.Notification{
		Title: title,
		Body:  body,
		Type:  "request-" + string(req.Type),
	})
}

// donationHandler moves the amount from the wallet to the charity case and
// grants the configured bonus points for donating.
type donationHandler struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	caseRepo   ports.CaseRepository
	bonusPct   float64
}

func (h *donationHandler) validate(req *domain.TxRequest) *apperror.AppError {
	return nil
}

func (h *donationHandler) apply(ctx context.Context, dbTx pgx.Tx, req *domain.TxRequest) error {
	now := time.Now().UTC()
	entry := &domain.LedgerEntry{
		ID:         uuid.New(),
		UserID:     req.UserID,
		SourceTxID: req.ID.String(),
		Type:       domain.LedgerEntryDonation,
		Amount:     req.Amount,
		Currency:   domain.CurrencyBase,
		Target:     req.Target,
		CreatedAt:  now,
	}
	inserted, err := h.ledgerRepo.Append(ctx, dbTx, entry)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("append donation entry: %w", err))
	}
	if !inserted {
		return apperror.ErrDuplicateLedgerEntry()
	}
	if err := h.walletRepo.AddApproved(ctx, dbTx, req.UserID, -req.Amount); err != nil {
		return apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
	}
	if err := h.caseRepo.AddFunds(ctx, dbTx, req.Target, req.Amount); err != nil {
		return apperror.InternalError(fmt.Errorf("add case funds: %w", err))
	}

	bonus := int64(math.Round(float64(req.Amount) * h.bonusPct))
	if bonus > 0 {
		bonusEntry := &domain.LedgerEntry{
			ID:         uuid.New(),
			UserID:     req.UserID,
			SourceTxID: req.ID.String(),
			Type:       domain.LedgerEntryBonus,
			Amount:     bonus,
			Currency:   domain.CurrencyPoints,
			CreatedAt:  now,
		}
		if _, err := h.ledgerRepo.Append(ctx, dbTx, bonusEntry); err != nil {
			return apperror.InternalError(fmt.Errorf("append bonus entry: %w", err))
		}
		if err := h.walletRepo.AddPoints(ctx, dbTx, req.UserID, bonus); err != nil {
			return apperror.InternalError(fmt.Errorf("credit bonus points: %w", err))
		}
	}
	return nil
}

// cashoutHandler debits the wallet; the actual bank transfer happens outside
// this system once the request is ACCEPTED.
type cashoutHandler struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	minAmount  int64
}

func (h *cashoutHandler) validate(req *domain.TxRequest) *apperror.AppError {
	if req.Amount < h.minAmount {
		return apperror.ErrBelowMinimumCashout(h.minAmount)
	}
	return nil
}

func (h *cashoutHandler) apply(ctx context.Context, dbTx pgx.Tx, req *domain.TxRequest) error {
	entry := &domain.LedgerEntry{
		ID:         uuid.New(),
		UserID:     req.UserID,
		SourceTxID: req.ID.String(),
		Type:       domain.LedgerEntryCashout,
		Amount:     req.Amount,
		Currency:   domain.CurrencyBase,
		Target:     req.Target,
		CreatedAt:  time.Now().UTC(),
	}
	inserted, err := h.ledgerRepo.Append(ctx, dbTx, entry)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("append cashout entry: %w", err))
	}
	if !inserted {
		return apperror.ErrDuplicateLedgerEntry()
	}
	if err := h.walletRepo.AddApproved(ctx, dbTx, req.UserID, -req.Amount); err != nil {
		return apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
	}
	return nil
}
