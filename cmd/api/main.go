package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/josh-kwaku/royalty-settlement/internal/config"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/handler"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
	"github.com/josh-kwaku/royalty-settlement/internal/middleware"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
	"github.com/josh-kwaku/royalty-settlement/internal/service"
	"github.com/josh-kwaku/royalty-settlement/internal/service/balance"
	"github.com/josh-kwaku/royalty-settlement/internal/service/ledger"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
	"github.com/josh-kwaku/royalty-settlement/internal/service/revenue"
	"github.com/josh-kwaku/royalty-settlement/internal/service/splits"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateAPI(); err != nil {
		slog.Error("invalid api config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("royalty-api", cfg.LogLevel, cfg.AppEnv)

	feeBP, err := cfg.PlatformFeeBasisPoints()
	if err != nil {
		slog.Error("invalid platform fee", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, cfg.DBConnectAttempts)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New()
	currency := domain.Currency(cfg.Currency)

	projects := repository.NewProjectRepository(db)
	collaborators := repository.NewCollaboratorRepository(db)
	splitRepo := repository.NewSplitRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	provider := service.NewProviderClient(service.ProviderClientConfig{
		BaseURL: cfg.ProviderURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout,
		RPS:     cfg.ProviderRPS,
		Burst:   cfg.ProviderBurst,
	}, m)

	registry := splits.NewRegistry(projects, collaborators, splitRepo, db)
	balances := balance.NewAggregator(collaborators, ledgerRepo, payoutRepo)
	poster := ledger.NewPoster(projects, registry, ledgerRepo, balances)
	payouts := payout.NewService(
		payoutRepo,
		collaborators,
		ledgerRepo,
		repository.NewPayoutEventRepository(db),
		repository.NewNotificationRepository(db),
		balances,
		provider,
		db,
		payout.Settings{Currency: currency, FeeBasisPoints: feeBP},
		m,
	)
	recorder := revenue.NewRecorder(
		repository.NewRevenueRepository(db),
		projects,
		poster,
		ledgerRepo,
		payouts,
		db,
		currency,
		m,
	)

	reconciler := service.NewReconciler(payouts, collaborators, provider)
	processor := service.NewWebhookProcessor(webhookRepo, reconciler, logger.With("component", "webhook_processor"), m, service.WebhookProcessorConfig{
		Interval:     cfg.WebhookPollInterval,
		BatchSize:    cfg.WebhookBatchSize,
		MaxAttempts:  cfg.WebhookMaxAttempts,
		ClaimTimeout: cfg.WebhookClaimTimeout,
	})
	sweeper := service.NewSweeper(payoutRepo, payouts, idempotencyRepo, logger.With("component", "sweeper"), m, service.SweeperConfig{
		Interval:   cfg.SweepInterval,
		StaleAfter: cfg.SweepStaleAfter,
		BatchSize:  cfg.SweepBatchSize,
	})

	routes := router{
		health:   handler.NewHealthHandler(db, webhookRepo),
		balances: handler.NewBalanceHandler(balances, payouts, currency),
		payouts:  handler.NewPayoutHandler(payouts),
		splits:   handler.NewSplitHandler(registry),
		revenue:  handler.NewRevenueHandler(recorder),
		webhooks: handler.NewWebhookHandler(webhookRepo, cfg.WebhookSecret),
		metrics:  m.Handler(),

		metricsSink: m,

		authenticate:  middleware.Auth(cfg.JWTSecret),
		internalOnly:  middleware.InternalToken(cfg.InternalAPIToken),
		deduplicating: middleware.Idempotency(idempotencyRepo),
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           routes.build(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer workers.Done()
		sweeper.Start(ctx)
	}()

	go func() {
		slog.Info("server started", "addr", addr, "currency", currency, "fee_bp", feeBP)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	workers.Wait()
	slog.Info("server stopped")
}

type router struct {
	health   *handler.HealthHandler
	balances *handler.BalanceHandler
	payouts  *handler.PayoutHandler
	splits   *handler.SplitHandler
	revenue  *handler.RevenueHandler
	webhooks *handler.WebhookHandler
	metrics  http.Handler

	metricsSink *metrics.Metrics

	authenticate  func(http.Handler) http.Handler
	internalOnly  func(http.Handler) http.Handler
	deduplicating func(http.Handler) http.Handler
}

func (rt router) build() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", rt.health.Liveness)
	mux.HandleFunc("GET /ready", rt.health.Readiness)
	mux.Handle("GET /metrics", rt.metrics)

	mux.Handle("POST /internal/v1/revenue", rt.internalOnly(http.HandlerFunc(rt.revenue.Import)))
	mux.Handle("POST /internal/v1/sales", rt.internalOnly(http.HandlerFunc(rt.revenue.RecordSale)))

	mux.HandleFunc("POST /api/v1/webhooks/provider", rt.webhooks.ReceiveProviderWebhook)

	authed := func(h http.HandlerFunc) http.Handler { return rt.authenticate(h) }
	mux.Handle("GET /api/v1/collaborators/{id}/balance", authed(rt.balances.GetBalance))
	mux.Handle("POST /api/v1/collaborators/{id}/withdrawals", rt.authenticate(rt.deduplicating(http.HandlerFunc(rt.balances.Withdraw))))
	mux.Handle("GET /api/v1/collaborators/{id}/payouts", authed(rt.balances.ListPayouts))
	mux.Handle("GET /api/v1/payouts/{id}", authed(rt.payouts.Get))
	mux.Handle("POST /api/v1/payouts/{id}/cancel", authed(rt.payouts.Cancel))

	mux.Handle("GET /api/v1/projects/{id}/splits", authed(rt.splits.List))
	mux.Handle("POST /api/v1/projects/{id}/splits", authed(rt.splits.Create))
	mux.Handle("POST /api/v1/projects/{id}/splits/lock", authed(rt.splits.Lock))
	mux.Handle("PATCH /api/v1/splits/{id}", authed(rt.splits.Update))

	var h http.Handler = mux
	h = middleware.Logging(rt.metricsSink)(h)
	h = middleware.Tracing(h)
	h = middleware.Recovery(rt.metricsSink)(h)
	return h
}
