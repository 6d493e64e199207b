package payout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

// ReleaseDeferred resubmits payouts parked for onboarding once the collaborator's account
// can receive funds. It returns how many payouts left the deferred state.
func (s *Service) ReleaseDeferred(ctx context.Context, collaboratorID uuid.UUID) (int, error) {
	log := logging.FromContext(ctx).With("collaborator_id", collaboratorID)

	collab, err := s.collaborators.GetByID(ctx, collaboratorID)
	if err != nil {
		return 0, fmt.Errorf("ReleaseDeferred: %w", err)
	}
	if !collab.HasPayeeAccount() {
		return 0, nil
	}

	status, err := s.provider.VerifyAccount(ctx, *collab.PayeeAccountID)
	if err != nil {
		return 0, fmt.Errorf("ReleaseDeferred: %w", err)
	}
	if !status.Ready() {
		log.Debug("payee still onboarding")
		return 0, nil
	}

	deferred, err := s.payouts.ListDeferred(ctx, collaboratorID)
	if err != nil {
		return 0, fmt.Errorf("ReleaseDeferred: %w", err)
	}

	released := 0
	for i := range deferred {
		p := &deferred[i]

		ok, err := s.clearDeferral(ctx, p.ID)
		if err != nil {
			return released, fmt.Errorf("ReleaseDeferred: %w", err)
		}
		if !ok {
			continue
		}
		p.RequiresOnboarding = false

		submitted, err := s.submit(ctx, p, ActorSystem)
		if err != nil {
			return released, fmt.Errorf("ReleaseDeferred: %w", err)
		}
		if !submitted.RequiresOnboarding {
			released++
		}
	}

	if released > 0 {
		log.Info("deferred payouts released", "count", released)
	}
	return released, nil
}

func (s *Service) clearDeferral(ctx context.Context, payoutID uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("clearDeferral: begin tx: %w", err)
	}
	defer tx.Rollback()

	changed, err := s.payouts.SetRequiresOnboarding(ctx, tx, payoutID, false)
	if err != nil {
		return false, fmt.Errorf("clearDeferral: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("clearDeferral: commit: %w", err)
	}
	return changed, nil
}

// Resubmit retries a pending payout whose previous submission has no known outcome. The
// payout id is the provider idempotency key, so the provider returns the original
// object if the first attempt did land.
func (s *Service) Resubmit(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	p, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("Resubmit: %w", err)
	}
	if p.Status != domain.PayoutStatusPending || p.RequiresOnboarding {
		return p, nil
	}
	if p.Acknowledged() {
		return s.RefreshFromProvider(ctx, payoutID)
	}

	submitted, err := s.submit(ctx, p, ActorSweep)
	if err != nil {
		return nil, fmt.Errorf("Resubmit: %w", err)
	}
	return submitted, nil
}

// RefreshFromProvider polls the provider for an acknowledged payout and applies the
// status it reports.
func (s *Service) RefreshFromProvider(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	p, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("RefreshFromProvider: %w", err)
	}
	if !p.Acknowledged() || p.Status.IsTerminal() {
		return p, nil
	}

	var obj *ObjectStatus
	switch p.Kind {
	case domain.PayoutKindTransferOnSale:
		obj, err = s.provider.GetTransfer(ctx, *p.ExternalReferenceID)
	default:
		obj, err = s.provider.GetPayout(ctx, *p.ExternalReferenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("RefreshFromProvider: %w", err)
	}

	reported, ok := StatusFromProvider(obj.Status)
	if !ok || reported == p.Status {
		return p, nil
	}

	updated, _, err := s.ApplyProviderStatus(ctx, p.ID, reported, "", obj.FailureReason, ActorSweep, nil)
	if err != nil {
		return updated, fmt.Errorf("RefreshFromProvider: %w", err)
	}
	return updated, nil
}
