package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

// TransferOnSale creates one transfer per non-zero ledger entry of a sale and submits
// those whose payee can receive funds. Entries already settled by an earlier payout are
// skipped. A failure for one collaborator does not stop the others.
func (s *Service) TransferOnSale(ctx context.Context, event *domain.RevenueEvent, entries []domain.LedgerEntry) ([]domain.Payout, error) {
	log := logging.FromContext(ctx).With("revenue_event_id", event.ID)

	var (
		payouts []domain.Payout
		errs    []error
	)
	for _, entry := range entries {
		if entry.Amount == 0 {
			continue
		}

		p, err := s.createTransfer(ctx, event, entry)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
				log.Info("ledger entry already has a payout", "ledger_entry_id", entry.ID)
				continue
			}
			s.metrics.PayoutRequested(string(domain.PayoutKindTransferOnSale), "error")
			log.Error("transfer on sale not created",
				"ledger_entry_id", entry.ID,
				"collaborator_id", entry.CollaboratorID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("entry %s: %w", entry.ID, err))
			continue
		}
		s.metrics.PayoutRequested(string(domain.PayoutKindTransferOnSale), "reserved")

		if !p.RequiresOnboarding {
			submitted, err := s.submit(ctx, p, ActorSystem)
			if err != nil {
				log.Error("transfer submission failed", "payout_id", p.ID, "error", err)
			} else {
				p = submitted
			}
		}
		payouts = append(payouts, *p)
	}

	if len(errs) > 0 {
		return payouts, fmt.Errorf("TransferOnSale: %w", errors.Join(errs...))
	}
	return payouts, nil
}

func (s *Service) createTransfer(ctx context.Context, event *domain.RevenueEvent, entry domain.LedgerEntry) (*domain.Payout, error) {
	collab, err := s.collaborators.GetByID(ctx, entry.CollaboratorID)
	if err != nil {
		return nil, fmt.Errorf("createTransfer: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("createTransfer: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.balances.Reserve(ctx, tx, entry.CollaboratorID, entry.Amount); err != nil {
		return nil, fmt.Errorf("createTransfer: %w", err)
	}

	now := s.now()
	eventID := event.ID
	p := &domain.Payout{
		ID:                 uuid.New(),
		CollaboratorID:     entry.CollaboratorID,
		Amount:             entry.Amount,
		FeeAmount:          s.FeeFor(entry.Amount),
		Currency:           s.settings.Currency,
		Kind:               domain.PayoutKindTransferOnSale,
		Status:             domain.PayoutStatusPending,
		RequiresOnboarding: !collab.HasPayeeAccount(),
		RevenueEventID:     &eventID,
		RequestedAt:        now,
		UpdatedAt:          now,
	}
	if err := s.payouts.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("createTransfer: create payout: %w", err)
	}
	if err := s.payouts.CreateItem(ctx, tx, p.ID, entry.ID); err != nil {
		return nil, fmt.Errorf("createTransfer: %w", err)
	}

	if err := s.writeEvent(ctx, tx, p.ID, domain.PayoutEventTypeCreated, ActorSystem, nil); err != nil {
		return nil, fmt.Errorf("createTransfer: %w", err)
	}
	if p.RequiresOnboarding {
		if err := s.writeEvent(ctx, tx, p.ID, domain.PayoutEventTypeDeferred, ActorSystem, nil); err != nil {
			return nil, fmt.Errorf("createTransfer: %w", err)
		}
		if err := s.notify(ctx, tx, p, domain.NotificationPayoutRequiresOnboarding); err != nil {
			return nil, fmt.Errorf("createTransfer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("createTransfer: commit: %w", err)
	}
	return p, nil
}
