package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

// CancelPayout cancels a collaborator's own payout while it is still pending and the
// provider has not seen it. The reservation is returned to the available balance.
func (s *Service) CancelPayout(ctx context.Context, collaboratorID, payoutID uuid.UUID) (*domain.Payout, error) {
	p, err := s.GetPayoutForCollaborator(ctx, payoutID, collaboratorID)
	if err != nil {
		return nil, fmt.Errorf("CancelPayout: %w", err)
	}
	if p.Status.IsTerminal() {
		return nil, fmt.Errorf("CancelPayout: %w", domain.ErrPayoutTerminal)
	}
	if p.Status != domain.PayoutStatusPending || p.Acknowledged() {
		return nil, fmt.Errorf("CancelPayout: %w", domain.ErrPayoutNotCancellable)
	}

	cancelled, applied, err := s.transition(ctx, TransitionRequest{
		PayoutID:      payoutID,
		To:            domain.PayoutStatusCancelled,
		FailureReason: strPtr("cancelled by collaborator"),
		Actor:         ActorCollaborator,
	}, []domain.PayoutStatus{domain.PayoutStatusPending}, true)
	if err != nil {
		if errors.Is(err, domain.ErrPayoutTerminal) {
			return nil, fmt.Errorf("CancelPayout: %w", domain.ErrPayoutTerminal)
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, fmt.Errorf("CancelPayout: %w", domain.ErrPayoutNotCancellable)
		}
		return nil, fmt.Errorf("CancelPayout: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("CancelPayout: %w", domain.ErrPayoutTerminal)
	}
	return cancelled, nil
}
