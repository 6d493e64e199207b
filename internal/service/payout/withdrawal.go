package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

type WithdrawalRequest struct {
	CollaboratorID uuid.UUID
	Amount         int64
}

// RequestWithdrawal reserves amount from the available balance and asks the provider to
// pay it out. The reservation commits before the provider call; the provider's answer
// is recorded in a second transaction.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Payout, error) {
	log := logging.FromContext(ctx)

	if req.Amount <= 0 {
		s.metrics.PayoutRequested(string(domain.PayoutKindWithdrawal), "invalid")
		return nil, fmt.Errorf("RequestWithdrawal: %w", domain.ErrInvalidAmount)
	}

	collab, err := s.collaborators.GetByID(ctx, req.CollaboratorID)
	if err != nil {
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}
	if !collab.HasPayeeAccount() {
		s.metrics.PayoutRequested(string(domain.PayoutKindWithdrawal), "not_onboarded")
		if err := s.notifyOnboardingRequired(ctx, collab.ID, req.Amount); err != nil {
			log.Error("onboarding notification not written", "collaborator_id", collab.ID, "error", err)
		}
		return nil, fmt.Errorf("RequestWithdrawal: %w", domain.ErrPayeeNotOnboarded)
	}

	p, err := s.reserveWithdrawal(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			s.metrics.PayoutRequested(string(domain.PayoutKindWithdrawal), "insufficient_balance")
		}
		return nil, fmt.Errorf("RequestWithdrawal: %w", err)
	}
	s.metrics.PayoutRequested(string(domain.PayoutKindWithdrawal), "reserved")

	log.Info("withdrawal reserved",
		"payout_id", p.ID,
		"collaborator_id", req.CollaboratorID,
		"amount", req.Amount,
	)

	submitted, err := s.submit(ctx, p, ActorCollaborator)
	if err != nil {
		// The reservation stands; the sweep finishes the submission.
		log.Error("withdrawal submission failed", "payout_id", p.ID, "error", err)
		return p, nil
	}
	return submitted, nil
}

func (s *Service) reserveWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Payout, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.balances.Reserve(ctx, tx, req.CollaboratorID, req.Amount); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: %w", err)
	}

	now := s.now()
	p := &domain.Payout{
		ID:             uuid.New(),
		CollaboratorID: req.CollaboratorID,
		Amount:         req.Amount,
		Currency:       s.settings.Currency,
		Kind:           domain.PayoutKindWithdrawal,
		Status:         domain.PayoutStatusPending,
		RequestedAt:    now,
		UpdatedAt:      now,
	}
	if err := s.payouts.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: create payout: %w", err)
	}

	if err := s.writeEvent(ctx, tx, p.ID, domain.PayoutEventTypeCreated, ActorCollaborator, nil); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reserveWithdrawal: commit: %w", err)
	}
	return p, nil
}

// notifyOnboardingRequired tells a payee without a connected account that a withdrawal
// was refused. Nothing is reserved, so there is no payout to reference.
func (s *Service) notifyOnboardingRequired(ctx context.Context, collaboratorID uuid.UUID, amount int64) error {
	payload, err := json.Marshal(map[string]string{
		"kind":     string(domain.PayoutKindWithdrawal),
		"amount":   domain.FormatMinor(amount),
		"currency": string(s.settings.Currency),
		"reason":   domain.ErrPayeeNotOnboarded.Error(),
	})
	if err != nil {
		return fmt.Errorf("notifyOnboardingRequired: marshal: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("notifyOnboardingRequired: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.notifications.Create(ctx, tx, &domain.Notification{
		ID:             uuid.New(),
		CollaboratorID: collaboratorID,
		Kind:           domain.NotificationPayoutRequiresOnboarding,
		Payload:        payload,
		CreatedAt:      s.now(),
	}); err != nil {
		return fmt.Errorf("notifyOnboardingRequired: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("notifyOnboardingRequired: commit: %w", err)
	}
	return nil
}
