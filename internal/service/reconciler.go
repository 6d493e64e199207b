package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
)

// Outcome is how a webhook event ended up after handling.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
)

var webhookTargets = map[domain.WebhookEventType]domain.PayoutStatus{
	domain.WebhookTransferCreated:  domain.PayoutStatusInTransit,
	domain.WebhookTransferPaid:     domain.PayoutStatusCompleted,
	domain.WebhookPayoutPaid:       domain.PayoutStatusCompleted,
	domain.WebhookTransferFailed:   domain.PayoutStatusFailed,
	domain.WebhookPayoutFailed:     domain.PayoutStatusFailed,
	domain.WebhookPayoutCanceled:   domain.PayoutStatusCancelled,
	domain.WebhookTransferReversed: domain.PayoutStatusRefunded,
}

// Reconciler applies provider webhook events to local payouts and payees.
type Reconciler struct {
	payouts       payoutReconciler
	collaborators payeeRepository
	verifier      accountVerifier
}

func NewReconciler(payouts payoutReconciler, collaborators payeeRepository, verifier accountVerifier) *Reconciler {
	return &Reconciler{
		payouts:       payouts,
		collaborators: collaborators,
		verifier:      verifier,
	}
}

// Handle is safe to call repeatedly for the same event: transitions that already
// happened are reported as ignored and change nothing.
func (r *Reconciler) Handle(ctx context.Context, event domain.WebhookEvent) (Outcome, error) {
	var body domain.ProviderWebhook
	if err := json.Unmarshal(event.Payload, &body); err != nil {
		return "", fmt.Errorf("Handle: malformed payload: %v: %w", err, domain.ErrInvalidRequest)
	}
	if body.ObjectID == "" {
		body.ObjectID = event.ObjectID
	}

	log := logging.FromContext(ctx).With(
		"webhook_event_id", event.ID,
		"provider_event_id", event.ProviderEventID,
		"event_type", event.EventType,
		"object_id", body.ObjectID,
	)
	ctx = logging.WithLogger(ctx, log)

	switch event.EventType {
	case domain.WebhookAccountUpdated:
		return r.accountUpdated(ctx, body.ObjectID)
	case domain.WebhookAccountDeauthorized:
		return r.accountDeauthorized(ctx, body.ObjectID)
	}

	target, ok := webhookTargets[event.EventType]
	if !ok {
		log.Warn("unhandled webhook event type")
		return OutcomeIgnored, nil
	}

	p, err := r.findPayout(ctx, body)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("webhook for unknown payout")
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("Handle: %w", err)
	}

	_, applied, err := r.payouts.ApplyProviderStatus(ctx, p.ID, target, body.ObjectID, body.FailureReason, payout.ActorWebhook, event.Payload)
	if err != nil {
		if errors.Is(err, domain.ErrPayoutTerminal) || errors.Is(err, domain.ErrInvalidTransition) {
			log.Info("webhook does not advance payout", "payout_id", p.ID, "error", err)
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("Handle: %w", err)
	}
	if !applied {
		return OutcomeIgnored, nil
	}
	return OutcomeProcessed, nil
}

// findPayout looks a payout up by provider id, falling back to the payout id the
// provider echoes in metadata when the submission response has not been recorded yet.
func (r *Reconciler) findPayout(ctx context.Context, body domain.ProviderWebhook) (*domain.Payout, error) {
	if body.ObjectID != "" {
		p, err := r.payouts.GetPayoutByExternalRef(ctx, body.ObjectID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("findPayout: %w", err)
		}
	}

	raw, ok := body.Metadata[payout.MetadataPayoutID]
	if !ok {
		return nil, fmt.Errorf("findPayout: %w", domain.ErrNotFound)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("findPayout: metadata payout_id %q: %w", raw, domain.ErrNotFound)
	}
	p, err := r.payouts.GetPayout(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("findPayout: %w", err)
	}
	return p, nil
}

func (r *Reconciler) accountUpdated(ctx context.Context, accountID string) (Outcome, error) {
	log := logging.FromContext(ctx)

	collab, err := r.collaborators.GetByPayeeAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("account update for unknown payee")
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("accountUpdated: %w", err)
	}
	if collab.PayeeStatus == domain.PayeeStatusDeauthorized {
		log.Info("ignoring update for deauthorized payee", "collaborator_id", collab.ID)
		return OutcomeIgnored, nil
	}

	status, err := r.verifier.VerifyAccount(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("accountUpdated: %w", err)
	}

	next := domain.PayeeStatusPending
	if status.Ready() {
		next = domain.PayeeStatusVerified
	}
	if next != collab.PayeeStatus {
		if err := r.collaborators.UpdatePayeeStatus(ctx, collab.ID, next); err != nil {
			return "", fmt.Errorf("accountUpdated: %w", err)
		}
		log.Info("payee status changed", "collaborator_id", collab.ID, "from", collab.PayeeStatus, "to", next)
	}

	if next == domain.PayeeStatusVerified {
		if _, err := r.payouts.ReleaseDeferred(ctx, collab.ID); err != nil {
			return "", fmt.Errorf("accountUpdated: %w", err)
		}
	}
	return OutcomeProcessed, nil
}

func (r *Reconciler) accountDeauthorized(ctx context.Context, accountID string) (Outcome, error) {
	collab, err := r.collaborators.GetByPayeeAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logging.FromContext(ctx).Warn("deauthorization for unknown payee")
			return OutcomeIgnored, nil
		}
		return "", fmt.Errorf("accountDeauthorized: %w", err)
	}
	if collab.PayeeStatus == domain.PayeeStatusDeauthorized {
		return OutcomeIgnored, nil
	}

	if err := r.collaborators.UpdatePayeeStatus(ctx, collab.ID, domain.PayeeStatusDeauthorized); err != nil {
		return "", fmt.Errorf("accountDeauthorized: %w", err)
	}
	logging.FromContext(ctx).Info("payee deauthorized", "collaborator_id", collab.ID)
	return OutcomeProcessed, nil
}
