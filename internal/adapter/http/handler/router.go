package handler

import (
	"cashback-ledger/internal/adapter/http/middleware"
	"cashback-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	RequestProc    ports.RequestProcessor
	ClickRecorder  ports.ClickRecorder
	LedgerUpdater  ports.LedgerUpdater
	WalletRepo     ports.WalletRepository
	LedgerRepo     ports.LedgerRepository
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))

	// Deep health check, verifies PostgreSQL and Redis.
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	h := NewLedgerHandler(deps.RequestProc, deps.ClickRecorder, deps.LedgerUpdater, deps.WalletRepo, deps.LedgerRepo)

	v1 := r.Group("/v1")
	{
		v1.POST("/requests/:id/process", h.ProcessRequest)
		v1.POST("/clicks", h.RecordClick)
		v1.GET("/wallets/:user_id", h.GetWallet)
		v1.POST("/wallets/:user_id/close", h.CloseWallet)
	}

	return r
}
