package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/auth"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

type payoutService interface {
	GetPayoutForCollaborator(ctx context.Context, payoutID, collaboratorID uuid.UUID) (*domain.Payout, error)
	CancelPayout(ctx context.Context, collaboratorID, payoutID uuid.UUID) (*domain.Payout, error)
	ListEvents(ctx context.Context, payoutID uuid.UUID) ([]domain.PayoutEvent, error)
}

type PayoutHandler struct {
	payouts payoutService
}

func NewPayoutHandler(payouts payoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

type payoutDTO struct {
	ID                  uuid.UUID  `json:"id"`
	CollaboratorID      uuid.UUID  `json:"collaborator_id"`
	Kind                string     `json:"kind"`
	Status              string     `json:"status"`
	Amount              int64      `json:"amount"`
	FeeAmount           int64      `json:"fee_amount"`
	NetAmount           int64      `json:"net_amount"`
	Currency            string     `json:"currency"`
	DisplayAmount       string     `json:"display_amount"`
	RequiresOnboarding  bool       `json:"requires_onboarding"`
	RevenueEventID      *uuid.UUID `json:"revenue_event_id,omitempty"`
	ExternalReferenceID *string    `json:"external_reference_id,omitempty"`
	FailureReason       *string    `json:"failure_reason,omitempty"`
	EstimatedArrival    *time.Time `json:"estimated_arrival,omitempty"`
	RequestedAt         time.Time  `json:"requested_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func toPayoutDTO(p *domain.Payout) payoutDTO {
	return payoutDTO{
		ID:                  p.ID,
		CollaboratorID:      p.CollaboratorID,
		Kind:                string(p.Kind),
		Status:              string(p.Status),
		Amount:              p.Amount,
		FeeAmount:           p.FeeAmount,
		NetAmount:           p.NetAmount(),
		Currency:            string(p.Currency),
		DisplayAmount:       domain.FormatMinor(p.NetAmount()),
		RequiresOnboarding:  p.RequiresOnboarding,
		RevenueEventID:      p.RevenueEventID,
		ExternalReferenceID: p.ExternalReferenceID,
		FailureReason:       p.FailureReason,
		EstimatedArrival:    p.EstimatedArrival,
		RequestedAt:         p.RequestedAt,
		UpdatedAt:           p.UpdatedAt,
		CompletedAt:         p.CompletedAt,
	}
}

func toPayoutDTOs(payouts []domain.Payout) []payoutDTO {
	dtos := make([]payoutDTO, len(payouts))
	for i := range payouts {
		dtos[i] = toPayoutDTO(&payouts[i])
	}
	return dtos
}

type payoutEventDTO struct {
	EventType string          `json:"event_type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type payoutDetailDTO struct {
	payoutDTO
	Events []payoutEventDTO `json:"events"`
}

func (h *PayoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	callerID, ok := auth.CollaboratorIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	payoutID, appErr := pathUUID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	p, err := h.payouts.GetPayoutForCollaborator(r.Context(), payoutID, callerID)
	if err != nil {
		log.Warn("payout lookup failed", "payout_id", payoutID, "error", err)
		RespondDomainError(w, err)
		return
	}

	events, err := h.payouts.ListEvents(r.Context(), p.ID)
	if err != nil {
		log.Error("payout events lookup failed", "payout_id", p.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	detail := payoutDetailDTO{payoutDTO: toPayoutDTO(p), Events: make([]payoutEventDTO, len(events))}
	for i, e := range events {
		detail.Events[i] = payoutEventDTO{
			EventType: string(e.EventType),
			Actor:     e.Actor,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		}
	}

	RespondSuccess(w, http.StatusOK, detail)
}

func (h *PayoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.CollaboratorIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	payoutID, appErr := pathUUID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	p, err := h.payouts.CancelPayout(r.Context(), callerID, payoutID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payout cancel rejected", "payout_id", payoutID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPayoutDTO(p))
}
