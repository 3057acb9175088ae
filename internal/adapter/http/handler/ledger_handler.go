package handler

import (
	"cashback-ledger/internal/core/domain"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/pkg/apperror"
	"cashback-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerHandler exposes the engine's ingress operations to the outer
// platform: request processing, click registration, wallet reads and
// account closure.
type LedgerHandler struct {
	processor  ports.RequestProcessor
	clicks     ports.ClickRecorder
	ledger     ports.LedgerUpdater
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(
	processor ports.RequestProcessor,
	clicks ports.ClickRecorder,
	ledger ports.LedgerUpdater,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
) *LedgerHandler {
	return &LedgerHandler{
		processor:  processor,
		clicks:     clicks,
		ledger:     ledger,
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
	}
}

// ProcessRequest handles POST /v1/requests/:id/process.
// The outer platform calls this after inserting a PENDING tx_request row.
// Re-calling with the same id returns the already-decided status.
func (h *LedgerHandler) ProcessRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrRequestNotFound())
		return
	}

	status, err := h.processor.Process(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"status": status})
}

type recordClickRequest struct {
	UserID    uuid.UUID `json:"user_id" binding:"required"`
	ProgramID string    `json:"program_id" binding:"required"`
	IPAddress string    `json:"ip_address"`
}

// RecordClick handles POST /v1/clicks.
func (h *LedgerHandler) RecordClick(c *gin.Context) {
	var req recordClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("invalid click payload"))
		return
	}

	click := domain.Click{
		UserID:    req.UserID,
		ProgramID: req.ProgramID,
		IPAddress: req.IPAddress,
	}
	if err := h.clicks.RecordClick(c.Request.Context(), click); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"recorded": true})
}

// GetWallet handles GET /v1/wallets/:user_id.
func (h *LedgerHandler) GetWallet(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Error(c, apperror.ErrWalletNotFound())
		return
	}

	wallet, err := h.walletRepo.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if wallet == nil {
		response.Error(c, apperror.ErrWalletNotFound())
		return
	}

	entries, err := h.ledgerRepo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	response.OK(c, gin.H{
		"wallet": wallet,
		"ledger": entries,
	})
}

type closeWalletRequest struct {
	CaseID string `json:"case_id" binding:"required"`
}

// CloseWallet handles POST /v1/wallets/:user_id/close.
// Invoked on account deletion: remaining cashback is donated out.
func (h *LedgerHandler) CloseWallet(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Error(c, apperror.ErrWalletNotFound())
		return
	}
	var req closeWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("invalid close payload"))
		return
	}

	if err := h.ledger.CloseWallet(c.Request.Context(), userID, req.CaseID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"closed": true})
}
