package payout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
)

type TransitionRequest struct {
	PayoutID            uuid.UUID
	To                  domain.PayoutStatus
	ExternalReferenceID *string
	FailureReason       *string
	EstimatedArrival    *time.Time
	Actor               string
	Payload             json.RawMessage
}

// Transition applies a status change with its balance and ledger effect in one
// transaction. Reaching a status the payout already has is a no-op reported with
// applied=false. Any other disallowed move returns ErrPayoutTerminal or
// ErrInvalidTransition along with the payout as it currently stands, and changes nothing.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*domain.Payout, bool, error) {
	sources := domain.TransitionSources(req.To)
	if len(sources) == 0 {
		return nil, false, fmt.Errorf("Transition: to %s: %w", req.To, domain.ErrInvalidTransition)
	}

	p, applied, err := s.transition(ctx, req, sources, false)
	if err != nil {
		return p, false, fmt.Errorf("Transition: %w", err)
	}
	return p, applied, nil
}

func (s *Service) transition(ctx context.Context, req TransitionRequest, from []domain.PayoutStatus, requireUnsubmitted bool) (*domain.Payout, bool, error) {
	log := logging.FromContext(ctx)
	now := s.now()

	upd := repository.TransitionUpdate{
		ExternalReferenceID: req.ExternalReferenceID,
		FailureReason:       req.FailureReason,
		EstimatedArrival:    req.EstimatedArrival,
		RequireUnsubmitted:  requireUnsubmitted,
	}
	if req.To == domain.PayoutStatusCompleted {
		upd.CompletedAt = &now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("transition: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payouts.Transition(ctx, tx, req.PayoutID, req.To, from, upd)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) {
			return nil, false, fmt.Errorf("transition: %w", err)
		}
		_ = tx.Rollback()
		return s.rejected(ctx, req)
	}

	if err := s.applyEffect(ctx, tx, p, req.To, now); err != nil {
		return nil, false, fmt.Errorf("transition: %w", err)
	}

	if err := s.writeEvent(ctx, tx, p.ID, domain.EventTypeFor(req.To), actorOr(req.Actor), req.Payload); err != nil {
		return nil, false, fmt.Errorf("transition: %w", err)
	}

	if kind, ok := domain.NotificationFor(req.To); ok {
		if err := s.notify(ctx, tx, p, kind); err != nil {
			return nil, false, fmt.Errorf("transition: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("transition: commit: %w", err)
	}

	s.metrics.PayoutTransitioned(string(req.To), actorOr(req.Actor))
	if compensating(req.To) {
		s.metrics.Compensated(string(req.To), p.Amount)
	}

	log.Info("payout transitioned",
		"payout_id", p.ID,
		"collaborator_id", p.CollaboratorID,
		"status", req.To,
		"actor", actorOr(req.Actor),
		"amount", p.Amount,
	)
	return p, true, nil
}

// rejected explains why a guarded update matched no row.
func (s *Service) rejected(ctx context.Context, req TransitionRequest) (*domain.Payout, bool, error) {
	current, err := s.payouts.GetByID(ctx, req.PayoutID)
	if err != nil {
		return nil, false, fmt.Errorf("transition: %w", err)
	}
	if current.Status == req.To {
		logging.FromContext(ctx).Debug("payout transition already applied",
			"payout_id", current.ID,
			"status", current.Status,
		)
		return current, false, nil
	}
	if current.Status.IsTerminal() {
		return current, false, fmt.Errorf("transition: %s -> %s: %w", current.Status, req.To, domain.ErrPayoutTerminal)
	}
	return current, false, fmt.Errorf("transition: %s -> %s: %w", current.Status, req.To, domain.ErrInvalidTransition)
}

func (s *Service) applyEffect(ctx context.Context, tx *sql.Tx, p *domain.Payout, to domain.PayoutStatus, now time.Time) error {
	switch to {
	case domain.PayoutStatusCompleted:
		if _, err := s.balances.Settle(ctx, tx, p.CollaboratorID, p.Amount); err != nil {
			return fmt.Errorf("applyEffect: settle: %w", err)
		}
		if _, err := s.ledger.MarkPaidForPayout(ctx, tx, p.ID, now); err != nil {
			return fmt.Errorf("applyEffect: %w", err)
		}
	case domain.PayoutStatusFailed, domain.PayoutStatusCancelled:
		if _, err := s.balances.Compensate(ctx, tx, p.CollaboratorID, p.Amount); err != nil {
			return fmt.Errorf("applyEffect: compensate: %w", err)
		}
	case domain.PayoutStatusRefunded:
		if _, err := s.balances.Reverse(ctx, tx, p.CollaboratorID, p.Amount); err != nil {
			return fmt.Errorf("applyEffect: reverse: %w", err)
		}
	}
	return nil
}

// ApplyProviderStatus moves a payout to the status the provider reported. A reversal of
// a payout that never completed is recorded as a failure so the reservation is released.
// A non-empty externalRef is the provider object the report is about; it is recorded
// first (an existing reference is kept) so the payout can be polled afterwards.
func (s *Service) ApplyProviderStatus(ctx context.Context, payoutID uuid.UUID, reported domain.PayoutStatus, externalRef string, reason *string, actor string, payload json.RawMessage) (*domain.Payout, bool, error) {
	if externalRef != "" {
		if err := s.payouts.AttachExternalRef(ctx, payoutID, externalRef, nil); err != nil {
			return nil, false, fmt.Errorf("ApplyProviderStatus: %w", err)
		}
	}

	// One retry covers a reversal racing the completion it reverses.
	for attempt := 0; ; attempt++ {
		req := TransitionRequest{
			PayoutID:      payoutID,
			To:            reported,
			FailureReason: reason,
			Actor:         actor,
			Payload:       payload,
		}

		if reported == domain.PayoutStatusRefunded {
			current, err := s.payouts.GetByID(ctx, payoutID)
			if err != nil {
				return nil, false, fmt.Errorf("ApplyProviderStatus: %w", err)
			}
			if current.Status.IsOutstanding() {
				req.To = domain.PayoutStatusFailed
				if req.FailureReason == nil {
					req.FailureReason = strPtr("reversed")
				}
			}
		}

		p, applied, err := s.Transition(ctx, req)
		if err != nil && reported == domain.PayoutStatusRefunded && attempt == 0 &&
			req.To == domain.PayoutStatusFailed && p != nil && p.Status == domain.PayoutStatusCompleted {
			continue
		}
		if err != nil {
			return p, false, fmt.Errorf("ApplyProviderStatus: %w", err)
		}
		return p, applied, nil
	}
}

func compensating(to domain.PayoutStatus) bool {
	switch to {
	case domain.PayoutStatusFailed, domain.PayoutStatusCancelled, domain.PayoutStatusRefunded:
		return true
	}
	return false
}

func actorOr(actor string) string {
	if actor == "" {
		return ActorSystem
	}
	return actor
}
