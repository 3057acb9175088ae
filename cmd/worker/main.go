package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cashback-ledger/config"
	"cashback-ledger/internal/adapter/feed"
	httpHandler "cashback-ledger/internal/adapter/http/handler"
	"cashback-ledger/internal/adapter/push"
	pgStorage "cashback-ledger/internal/adapter/storage/postgres"
	redisStorage "cashback-ledger/internal/adapter/storage/redis"
	"cashback-ledger/internal/core/ports"
	"cashback-ledger/internal/service"
	"cashback-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("cashback-ledger", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Int("port", cfg.Server.Port).
		Dur("reconcile_interval", cfg.Worker.ReconcileInterval).
		Msg("Starting Cashback Ledger Engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	commRepo := pgStorage.NewCommissionRepo(pool)
	dlqRepo := pgStorage.NewDeadLetterRepo(pool)
	reqRepo := pgStorage.NewRequestRepo(pool)
	achRepo := pgStorage.NewAchievementRepo(pool)
	progressRepo := pgStorage.NewProgressRepo(pool)
	rewardRepo := pgStorage.NewRewardRepo(pool)
	userRepo := pgStorage.NewUserRepo(pool)
	clickRepo := pgStorage.NewClickRepo(pool)
	caseRepo := pgStorage.NewCaseRepo(pool)
	tokenRepo := pgStorage.NewDeviceTokenRepo(pool)
	stateRepo := pgStorage.NewFeedStateRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Event queue (publisher + consumer over the same redis list)
	eventQueue := redisStorage.NewEventQueue(rdb, cfg.Worker.EventQueue)

	// External collaborators
	feedClient := feed.NewClient(cfg.Feed, log)
	pushSender := push.NewSender(cfg.Push, &http.Client{Timeout: cfg.Push.Timeout}, log)

	// Core services
	notifSvc := service.NewNotificationService(tokenRepo, pushSender, log)
	ledgerSvc := service.NewLedgerService(walletRepo, ledgerRepo, caseRepo, transactor, notifSvc, log)
	reconcilerSvc := service.NewReconcilerService(
		feedClient,
		userRepo,
		clickRepo,
		commRepo,
		dlqRepo,
		stateRepo,
		ledgerSvc,
		eventQueue,
		cfg.Ledger.UserPercentage,
		cfg.Ledger.ReferralPercentage,
		log,
	)
	requestSvc := service.NewRequestService(
		reqRepo,
		walletRepo,
		ledgerRepo,
		caseRepo,
		transactor,
		notifSvc,
		eventQueue,
		cfg.Ledger.MinCashoutAmount,
		cfg.Ledger.BonusPercentage,
		log,
	)
	achievementSvc := service.NewAchievementService(achRepo, progressRepo, rewardRepo, transactor, notifSvc, log)
	rewardSvc := service.NewRewardService(rewardRepo, achRepo, walletRepo, ledgerRepo, transactor, notifSvc, log)
	clickSvc := service.NewClickService(clickRepo, eventQueue, log)

	// Health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		RequestProc:    requestSvc,
		ClickRecorder:  clickSvc,
		LedgerUpdater:  ledgerSvc,
		WalletRepo:     walletRepo,
		LedgerRepo:     ledgerRepo,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReconcileLoop(ctx, reconcilerSvc, cfg.Worker.ReconcileInterval, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runEventLoop(ctx, eventQueue, achievementSvc, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runRewardLoop(ctx, rewardSvc, cfg.Worker.RewardPollInterval, log)
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	wg.Wait()
	log.Info().Msg("Cashback Ledger Engine stopped")
}

// runReconcileLoop runs a reconciliation pass immediately and then on every
// tick until the context is cancelled.
func runReconcileLoop(ctx context.Context, reconciler ports.Reconciler, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := reconciler.Reconcile(ctx); err != nil {
			log.Error().Err(err).Msg("reconciliation pass failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runEventLoop consumes achievement events from the queue until the context
// is cancelled. Handler failures are logged; the at-least-once queue plus
// the engine's dedup keep redelivery safe.
func runEventLoop(ctx context.Context, source ports.EventSource, engine ports.AchievementEngine, log zerolog.Logger) {
	for {
		ev, err := source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("event queue read failed")
			time.Sleep(time.Second)
			continue
		}
		if ev == nil {
			continue
		}
		if err := engine.HandleEvent(ctx, *ev); err != nil {
			log.Error().Err(err).Str("event", string(ev.Type)).Msg("event handling failed")
		}
	}
}

// runRewardLoop polls for pending reward requests until the context is
// cancelled.
func runRewardLoop(ctx context.Context, fulfiller ports.RewardFulfiller, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fulfiller.FulfillPending(ctx); err != nil {
			log.Error().Err(err).Msg("reward fulfillment pass failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
