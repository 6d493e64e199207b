package testutil

import (
	"database/sql"
	"testing"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
	"github.com/josh-kwaku/royalty-settlement/internal/service/balance"
	"github.com/josh-kwaku/royalty-settlement/internal/service/ledger"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
	"github.com/josh-kwaku/royalty-settlement/internal/service/revenue"
	"github.com/josh-kwaku/royalty-settlement/internal/service/splits"
)

// Stack is the settlement services wired against a test database and a fake provider,
// the same way cmd/api wires them.
type Stack struct {
	DB       *sql.DB
	Provider *FakeProvider
	Metrics  *metrics.Metrics

	Collaborators *repository.CollaboratorRepository
	Ledger        *repository.LedgerRepository
	PayoutRepo    *repository.PayoutRepository

	Splits   *splits.Registry
	Balances *balance.Aggregator
	Poster   *ledger.Poster
	Payouts  *payout.Service
	Recorder *revenue.Recorder
}

func NewStack(t *testing.T, db *sql.DB, feeBasisPoints int64) *Stack {
	t.Helper()

	projects := repository.NewProjectRepository(db)
	collaborators := repository.NewCollaboratorRepository(db)
	splitRepo := repository.NewSplitRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	provider := NewFakeProvider()
	m := metrics.New()

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
		payout.Settings{Currency: domain.CurrencyUSD, FeeBasisPoints: feeBasisPoints},
		m,
	)
	recorder := revenue.NewRecorder(
		repository.NewRevenueRepository(db),
		projects,
		poster,
		ledgerRepo,
		payouts,
		db,
		domain.CurrencyUSD,
		m,
	)

	return &Stack{
		DB:            db,
		Provider:      provider,
		Metrics:       m,
		Collaborators: collaborators,
		Ledger:        ledgerRepo,
		PayoutRepo:    payoutRepo,
		Splits:        registry,
		Balances:      balances,
		Poster:        poster,
		Payouts:       payouts,
		Recorder:      recorder,
	}
}
