package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

// submit hands a reserved pending payout to the provider. It never returns an error for
// provider trouble: a rejection fails the payout with a compensating credit, and an
// unknown outcome leaves it pending for the sweep.
func (s *Service) submit(ctx context.Context, p *domain.Payout, actor string) (*domain.Payout, error) {
	log := logging.FromContext(ctx).With("payout_id", p.ID, "collaborator_id", p.CollaboratorID)

	collab, err := s.collaborators.GetByID(ctx, p.CollaboratorID)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if p.SubmitAttempts > 0 {
		// An earlier attempt may have landed at the provider. Only the resend under the
		// same idempotency key can say so; a verification answer says nothing about it.
		if collab.PayeeAccountID == nil || *collab.PayeeAccountID == "" {
			log.Warn("payee account gone after an unconfirmed submission, payout stays pending")
			return p, nil
		}
	} else {
		held, ok, err := s.checkPayee(ctx, p, collab, actor)
		if err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
		if ok {
			return held, nil
		}
	}

	claimed, err := s.payouts.ClaimSubmission(ctx, p.ID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info("payout no longer submittable")
			current, getErr := s.payouts.GetByID(ctx, p.ID)
			if getErr != nil {
				return nil, fmt.Errorf("submit: %w", getErr)
			}
			return current, nil
		}
		return nil, fmt.Errorf("submit: %w", err)
	}

	ref, eta, err := s.send(ctx, claimed, *collab.PayeeAccountID)
	if err != nil {
		// The provider replays the original object for a known idempotency key, so a
		// definitive rejection means nothing was created under this payout id.
		if errors.Is(err, domain.ErrExternalProvider) {
			return s.failSubmission(ctx, claimed, err, actor)
		}
		log.Warn("provider outcome unknown, payout stays pending", "error", err, "attempt", claimed.SubmitAttempts)
		return claimed, nil
	}

	updated, applied, err := s.Transition(ctx, TransitionRequest{
		PayoutID:            claimed.ID,
		To:                  domain.PayoutStatusInTransit,
		ExternalReferenceID: &ref,
		EstimatedArrival:    eta,
		Actor:               actor,
	})
	if err != nil && !errors.Is(err, domain.ErrPayoutTerminal) && !errors.Is(err, domain.ErrInvalidTransition) {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if !applied {
		// A webhook moved the payout first; keep the provider id for later lookups.
		if err := s.payouts.AttachExternalRef(ctx, claimed.ID, ref, eta); err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
		if updated != nil && updated.ExternalReferenceID == nil {
			updated.ExternalReferenceID = &ref
		}
	}

	log.Info("payout submitted", "external_reference_id", ref, "kind", claimed.Kind)
	return updated, nil
}

// checkPayee gates a first submission on the payee's account state. ok is true when the
// payout was deferred, failed or left pending instead of being sent.
func (s *Service) checkPayee(ctx context.Context, p *domain.Payout, collab *domain.Collaborator, actor string) (*domain.Payout, bool, error) {
	if !collab.HasPayeeAccount() {
		deferred, err := s.deferPayout(ctx, p, "payee account not connected")
		return deferred, true, err
	}

	status, err := s.provider.VerifyAccount(ctx, *collab.PayeeAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrExternalProvider) {
			failed, err := s.failSubmission(ctx, p, err, actor)
			return failed, true, err
		}
		logging.FromContext(ctx).Warn("account verification failed, payout stays pending", "payout_id", p.ID, "error", err)
		return p, true, nil
	}
	if !status.Ready() {
		if collab.PayeeStatus != domain.PayeeStatusPending {
			if err := s.collaborators.UpdatePayeeStatus(ctx, collab.ID, domain.PayeeStatusPending); err != nil {
				return nil, true, fmt.Errorf("checkPayee: %w", err)
			}
		}
		deferred, err := s.deferPayout(ctx, p, "payee account requires onboarding")
		return deferred, true, err
	}
	if collab.PayeeStatus != domain.PayeeStatusVerified {
		if err := s.collaborators.UpdatePayeeStatus(ctx, collab.ID, domain.PayeeStatusVerified); err != nil {
			return nil, true, fmt.Errorf("checkPayee: %w", err)
		}
	}
	return nil, false, nil
}

func (s *Service) send(ctx context.Context, p *domain.Payout, account string) (string, *time.Time, error) {
	metadata := map[string]string{MetadataPayoutID: p.ID.String()}
	if p.RevenueEventID != nil {
		metadata["revenue_event_id"] = p.RevenueEventID.String()
	}

	switch p.Kind {
	case domain.PayoutKindTransferOnSale:
		res, err := s.provider.CreateTransfer(ctx, TransferRequest{
			IdempotencyKey: p.ID.String(),
			Destination:    account,
			Amount:         p.NetAmount(),
			Currency:       p.Currency,
			Metadata:       metadata,
		})
		if err != nil {
			return "", nil, fmt.Errorf("send: %w", err)
		}
		return res.ExternalID, nil, nil
	default:
		res, err := s.provider.CreatePayout(ctx, PayoutRequest{
			IdempotencyKey: p.ID.String(),
			Account:        account,
			Amount:         p.NetAmount(),
			Currency:       p.Currency,
			Metadata:       metadata,
		})
		if err != nil {
			return "", nil, fmt.Errorf("send: %w", err)
		}
		return res.ExternalID, res.EstimatedArrival, nil
	}
}

func (s *Service) failSubmission(ctx context.Context, p *domain.Payout, cause error, actor string) (*domain.Payout, error) {
	logging.FromContext(ctx).Warn("provider rejected payout",
		"payout_id", p.ID,
		"error", cause,
	)

	failed, _, err := s.Transition(ctx, TransitionRequest{
		PayoutID:      p.ID,
		To:            domain.PayoutStatusFailed,
		FailureReason: strPtr(cause.Error()),
		Actor:         actor,
	})
	if err != nil && !errors.Is(err, domain.ErrPayoutTerminal) {
		return nil, fmt.Errorf("failSubmission: %w", err)
	}
	return failed, nil
}

// deferPayout parks a pending payout until the payee finishes onboarding.
func (s *Service) deferPayout(ctx context.Context, p *domain.Payout, reason string) (*domain.Payout, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("deferPayout: begin tx: %w", err)
	}
	defer tx.Rollback()

	changed, err := s.payouts.SetRequiresOnboarding(ctx, tx, p.ID, true)
	if err != nil {
		return nil, fmt.Errorf("deferPayout: %w", err)
	}
	if changed {
		p.RequiresOnboarding = true
		payload, _ := json.Marshal(map[string]string{"reason": reason})
		if err := s.writeEvent(ctx, tx, p.ID, domain.PayoutEventTypeDeferred, ActorSystem, payload); err != nil {
			return nil, fmt.Errorf("deferPayout: %w", err)
		}
		if err := s.notify(ctx, tx, p, domain.NotificationPayoutRequiresOnboarding); err != nil {
			return nil, fmt.Errorf("deferPayout: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("deferPayout: commit: %w", err)
	}

	if changed {
		logging.FromContext(ctx).Info("payout deferred until onboarding",
			"payout_id", p.ID,
			"collaborator_id", p.CollaboratorID,
			"reason", reason,
		)
	}

	current, err := s.payouts.GetByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("deferPayout: %w", err)
	}
	return current, nil
}
