package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type PayoutKind string

const (
	PayoutKindTransferOnSale PayoutKind = "transfer_on_sale"
	PayoutKindWithdrawal     PayoutKind = "withdrawal"
)

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusInTransit PayoutStatus = "in_transit"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
	PayoutStatusCancelled PayoutStatus = "cancelled"
	PayoutStatusRefunded  PayoutStatus = "refunded"
)

// payoutSources lists, for each target status, the statuses it may be reached from.
// Webhooks can arrive out of order, so pending may jump straight to a final state.
var payoutSources = map[PayoutStatus][]PayoutStatus{
	PayoutStatusInTransit: {PayoutStatusPending},
	PayoutStatusCompleted: {PayoutStatusPending, PayoutStatusInTransit},
	PayoutStatusFailed:    {PayoutStatusPending, PayoutStatusInTransit},
	PayoutStatusCancelled: {PayoutStatusPending, PayoutStatusInTransit},
	PayoutStatusRefunded:  {PayoutStatusCompleted},
}

func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusInTransit, PayoutStatusCompleted,
		PayoutStatusFailed, PayoutStatusCancelled, PayoutStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible except completed -> refunded.
func (s PayoutStatus) IsTerminal() bool {
	switch s {
	case PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled, PayoutStatusRefunded:
		return true
	}
	return false
}

// IsOutstanding reports whether the amount is still held in the pending balance.
func (s PayoutStatus) IsOutstanding() bool {
	return s == PayoutStatusPending || s == PayoutStatusInTransit
}

func TransitionSources(to PayoutStatus) []PayoutStatus {
	return payoutSources[to]
}

func CanTransition(from, to PayoutStatus) bool {
	return slices.Contains(payoutSources[to], from)
}

type Payout struct {
	ID                  uuid.UUID
	CollaboratorID      uuid.UUID
	Amount              int64
	FeeAmount           int64
	Currency            Currency
	Kind                PayoutKind
	Status              PayoutStatus
	RequiresOnboarding  bool
	RevenueEventID      *uuid.UUID
	ExternalReferenceID *string
	FailureReason       *string
	EstimatedArrival    *time.Time
	SubmitAttempts      int
	LastSubmittedAt     *time.Time
	RequestedAt         time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// NetAmount is what the provider delivers to the payee.
func (p *Payout) NetAmount() int64 {
	return p.Amount - p.FeeAmount
}

// Acknowledged reports whether the provider has accepted the payout.
func (p *Payout) Acknowledged() bool {
	return p.ExternalReferenceID != nil && *p.ExternalReferenceID != ""
}
