package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
)

type projectRepo interface {
	GetForShare(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Project, error)
}

type splitSource interface {
	ActiveSplitsTx(ctx context.Context, tx *sql.Tx, projectID uuid.UUID, at time.Time) ([]domain.RoyaltySplit, error)
	LockApplied(ctx context.Context, tx *sql.Tx, splitIDs []uuid.UUID, at time.Time) error
}

type ledgerRepo interface {
	MarkPosted(ctx context.Context, tx *sql.Tx, revenueEventID uuid.UUID, at time.Time) (bool, error)
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	GetByRevenueEvent(ctx context.Context, q repository.Querier, revenueEventID uuid.UUID) ([]domain.LedgerEntry, error)
}

type balanceCreditor interface {
	CreditEarnings(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error)
}

// Poster turns a revenue event into ledger entries and credits the resulting earnings.
type Poster struct {
	projects projectRepo
	splits   splitSource
	ledger   ledgerRepo
	balances balanceCreditor
	now      func() time.Time
}

func NewPoster(projects projectRepo, splits splitSource, ledger ledgerRepo, balances balanceCreditor) *Poster {
	return &Poster{
		projects: projects,
		splits:   splits,
		ledger:   ledger,
		balances: balances,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Post must run in the transaction that inserted the event. Posting the same event
// twice returns the entries written the first time and changes nothing.
func (p *Poster) Post(ctx context.Context, tx *sql.Tx, event *domain.RevenueEvent) ([]domain.LedgerEntry, error) {
	log := logging.FromContext(ctx)
	now := p.now()

	claimed, err := p.ledger.MarkPosted(ctx, tx, event.ID, now)
	if err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}
	if !claimed {
		log.Info("revenue event already posted", "revenue_event_id", event.ID)
		entries, err := p.ledger.GetByRevenueEvent(ctx, tx, event.ID)
		if err != nil {
			return nil, fmt.Errorf("Post: %w", err)
		}
		return entries, nil
	}

	project, err := p.projects.GetForShare(ctx, tx, event.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}

	active, err := p.splits.ActiveSplitsTx(ctx, tx, event.ProjectID, event.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}

	shares, err := BuildShares(active, project.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}

	allocations, err := Allocate(event.Amount, shares)
	if err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(allocations))
	var applied []uuid.UUID
	for _, a := range allocations {
		entry := domain.LedgerEntry{
			ID:             uuid.New(),
			RevenueEventID: event.ID,
			CollaboratorID: a.CollaboratorID,
			ProjectID:      event.ProjectID,
			SplitID:        a.SplitID,
			Amount:         a.Amount,
			BasisPoints:    a.BasisPoints,
			CreatedAt:      now,
		}
		if err := p.ledger.Create(ctx, tx, &entry); err != nil {
			return nil, fmt.Errorf("Post: create entry: %w", err)
		}
		entries = append(entries, entry)
		if a.SplitID != nil {
			applied = append(applied, *a.SplitID)
		}
	}

	// Credit in a fixed order so concurrent postings touching the same collaborators
	// cannot deadlock.
	credits := make([]domain.LedgerEntry, len(entries))
	copy(credits, entries)
	sort.Slice(credits, func(i, j int) bool {
		return credits[i].CollaboratorID.String() < credits[j].CollaboratorID.String()
	})
	for _, e := range credits {
		if e.Amount == 0 {
			continue
		}
		if _, err := p.balances.CreditEarnings(ctx, tx, e.CollaboratorID, e.Amount); err != nil {
			return nil, fmt.Errorf("Post: credit %s: %w", e.CollaboratorID, err)
		}
	}

	if err := p.splits.LockApplied(ctx, tx, applied, now); err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}

	log.Info("revenue event posted",
		"revenue_event_id", event.ID,
		"project_id", event.ProjectID,
		"amount", event.Amount,
		"entries", len(entries),
	)
	return entries, nil
}
