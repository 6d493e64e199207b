package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/config"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
	"github.com/josh-kwaku/royalty-settlement/internal/service"
	"github.com/josh-kwaku/royalty-settlement/internal/service/balance"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
	"github.com/josh-kwaku/royalty-settlement/internal/service/splits"
)

type commandContext struct {
	jsonOutput bool

	dbOnce sync.Once
	db     *sql.DB
	dbErr  error
	ownsDB bool

	// provider overrides the HTTP provider client; set by tests.
	provider payout.Provider
}

func newCommandContext() *commandContext {
	return &commandContext{ownsDB: true}
}

// withDB wraps an existing pool. The caller keeps ownership.
func withDB(db *sql.DB) *commandContext {
	c := &commandContext{db: db}
	c.dbOnce.Do(func() {})
	return c
}

func (c *commandContext) database(ctx context.Context) (*sql.DB, error) {
	c.dbOnce.Do(func() {
		cfg, err := config.LoadDatabase()
		if err != nil {
			c.dbErr = err
			return
		}
		logging.Init("royaltyctl", "warn", "development")
		c.db, c.dbErr = repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
			MaxOpenConns:     2,
			MaxIdleConns:     1,
			ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
			ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		}, cfg.DBConnectAttempts)
	})
	return c.db, c.dbErr
}

func (c *commandContext) close() {
	if c.ownsDB && c.db != nil {
		c.db.Close()
	}
}

func (c *commandContext) balances(ctx context.Context) (*balance.Aggregator, *repository.CollaboratorRepository, error) {
	db, err := c.database(ctx)
	if err != nil {
		return nil, nil, err
	}
	collaborators := repository.NewCollaboratorRepository(db)
	return balance.NewAggregator(collaborators, repository.NewLedgerRepository(db), repository.NewPayoutRepository(db)), collaborators, nil
}

func (c *commandContext) registry(ctx context.Context) (*splits.Registry, error) {
	db, err := c.database(ctx)
	if err != nil {
		return nil, err
	}
	return splits.NewRegistry(
		repository.NewProjectRepository(db),
		repository.NewCollaboratorRepository(db),
		repository.NewSplitRepository(db),
		db,
	), nil
}

func (c *commandContext) payoutRepo(ctx context.Context) (*repository.PayoutRepository, error) {
	db, err := c.database(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewPayoutRepository(db), nil
}

// sweeper needs the full service config: provider credentials, currency and fee.
func (c *commandContext) sweeper(ctx context.Context, staleAfter time.Duration) (*service.Sweeper, error) {
	db, err := c.database(ctx)
	if err != nil {
		return nil, err
	}

	settings := payout.Settings{Currency: domain.CurrencyUSD}
	sweepCfg := service.SweeperConfig{}
	m := metrics.New()

	provider := c.provider
	if provider == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		fee, err := cfg.PlatformFeeBasisPoints()
		if err != nil {
			return nil, err
		}
		settings = payout.Settings{Currency: domain.Currency(cfg.Currency), FeeBasisPoints: fee}
		sweepCfg = service.SweeperConfig{StaleAfter: cfg.SweepStaleAfter, BatchSize: cfg.SweepBatchSize}
		provider = service.NewProviderClient(service.ProviderClientConfig{
			BaseURL: cfg.ProviderURL,
			APIKey:  cfg.ProviderAPIKey,
			Timeout: cfg.ProviderTimeout,
			RPS:     cfg.ProviderRPS,
			Burst:   cfg.ProviderBurst,
		}, m)
	}
	if staleAfter > 0 {
		sweepCfg.StaleAfter = staleAfter
	}

	collaborators := repository.NewCollaboratorRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	payouts := payout.NewService(
		payoutRepo,
		collaborators,
		ledgerRepo,
		repository.NewPayoutEventRepository(db),
		repository.NewNotificationRepository(db),
		balance.NewAggregator(collaborators, ledgerRepo, payoutRepo),
		provider,
		db,
		settings,
		m,
	)
	return service.NewSweeper(payoutRepo, payouts, repository.NewIdempotencyRepository(db), logging.FromContext(ctx), m, sweepCfg), nil
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}
