package balance

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

type collaboratorRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Collaborator, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Collaborator, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, b domain.Balance, newVersion int64) error
}

type ledgerRepo interface {
	SumByCollaborator(ctx context.Context, collaboratorID uuid.UUID) (int64, error)
}

type payoutRepo interface {
	SumByStatus(ctx context.Context, collaboratorID uuid.UUID) (map[domain.PayoutStatus]int64, error)
}

// Aggregator owns the cached balance columns. Every mutation runs inside the caller's
// transaction with the collaborator row locked and its version bumped.
type Aggregator struct {
	collaborators collaboratorRepo
	ledger        ledgerRepo
	payouts       payoutRepo
}

func NewAggregator(collaborators collaboratorRepo, ledger ledgerRepo, payouts payoutRepo) *Aggregator {
	return &Aggregator{
		collaborators: collaborators,
		ledger:        ledger,
		payouts:       payouts,
	}
}

func (a *Aggregator) GetBalance(ctx context.Context, collaboratorID uuid.UUID) (*domain.Balance, error) {
	c, err := a.collaborators.GetByID(ctx, collaboratorID)
	if err != nil {
		return nil, fmt.Errorf("GetBalance: %w", err)
	}
	b := c.Balance()
	return &b, nil
}

func (a *Aggregator) AvailableBalance(ctx context.Context, collaboratorID uuid.UUID) (int64, error) {
	b, err := a.GetBalance(ctx, collaboratorID)
	if err != nil {
		return 0, fmt.Errorf("AvailableBalance: %w", err)
	}
	return b.Available, nil
}

// CreditEarnings adds posted ledger earnings.
func (a *Aggregator) CreditEarnings(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error) {
	return a.apply(ctx, tx, collaboratorID, "CreditEarnings", amount, func(b domain.Balance) (domain.Balance, error) {
		b.TotalEarnings += amount
		b.Available += amount
		return b, nil
	})
}

// Reserve moves amount from available to pending. It never reserves partially.
func (a *Aggregator) Reserve(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error) {
	return a.apply(ctx, tx, collaboratorID, "Reserve", amount, func(b domain.Balance) (domain.Balance, error) {
		if b.Available < amount {
			return b, domain.ErrInsufficientBalance
		}
		b.Available -= amount
		b.Pending += amount
		return b, nil
	})
}

// Settle records a completed payout: the reservation becomes a payout.
func (a *Aggregator) Settle(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error) {
	return a.apply(ctx, tx, collaboratorID, "Settle", amount, func(b domain.Balance) (domain.Balance, error) {
		b.Pending -= amount
		b.TotalPayouts += amount
		return b, nil
	})
}

// Compensate releases a reservation back to available after a failed or cancelled payout.
func (a *Aggregator) Compensate(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error) {
	return a.apply(ctx, tx, collaboratorID, "Compensate", amount, func(b domain.Balance) (domain.Balance, error) {
		b.Pending -= amount
		b.Available += amount
		return b, nil
	})
}

// Reverse undoes a completed payout that the provider later reversed.
func (a *Aggregator) Reverse(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error) {
	return a.apply(ctx, tx, collaboratorID, "Reverse", amount, func(b domain.Balance) (domain.Balance, error) {
		b.TotalPayouts -= amount
		b.Available += amount
		return b, nil
	})
}

func (a *Aggregator) apply(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, op string, amount int64, fn func(domain.Balance) (domain.Balance, error)) (*domain.Balance, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrInvalidAmount)
	}

	c, err := a.collaborators.GetForUpdate(ctx, tx, collaboratorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next, err := fn(c.Balance())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if next.Available < 0 || next.Pending < 0 || next.TotalPayouts < 0 {
		logging.FromContext(ctx).Error("balance invariant violated",
			"collaborator_id", collaboratorID,
			"op", op,
			"amount", amount,
			"available", next.Available,
			"pending", next.Pending,
			"total_payouts", next.TotalPayouts,
		)
		return nil, fmt.Errorf("%s: %w", op, domain.ErrBalanceInvariant)
	}

	if err := a.collaborators.UpdateBalances(ctx, tx, collaboratorID, next, c.Version+1); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &next, nil
}

// AuditReport compares the cached balance with one re-derived from ledger entries and
// payouts.
type AuditReport struct {
	CollaboratorID uuid.UUID
	Cached         domain.Balance
	Derived        domain.Balance
}

func (r *AuditReport) Drift() bool {
	return r.Cached != r.Derived
}

func (a *Aggregator) Audit(ctx context.Context, collaboratorID uuid.UUID) (*AuditReport, error) {
	c, err := a.collaborators.GetByID(ctx, collaboratorID)
	if err != nil {
		return nil, fmt.Errorf("Audit: %w", err)
	}

	earnings, err := a.ledger.SumByCollaborator(ctx, collaboratorID)
	if err != nil {
		return nil, fmt.Errorf("Audit: %w", err)
	}

	sums, err := a.payouts.SumByStatus(ctx, collaboratorID)
	if err != nil {
		return nil, fmt.Errorf("Audit: %w", err)
	}

	derived := domain.Balance{
		TotalEarnings: earnings,
		Pending:       sums[domain.PayoutStatusPending] + sums[domain.PayoutStatusInTransit],
		TotalPayouts:  sums[domain.PayoutStatusCompleted],
	}
	derived.Available = derived.TotalEarnings - derived.Pending - derived.TotalPayouts

	report := &AuditReport{
		CollaboratorID: collaboratorID,
		Cached:         c.Balance(),
		Derived:        derived,
	}
	if report.Drift() {
		logging.FromContext(ctx).Warn("balance drift detected",
			"collaborator_id", collaboratorID,
			"cached_available", report.Cached.Available,
			"derived_available", report.Derived.Available,
		)
	}
	return report, nil
}
