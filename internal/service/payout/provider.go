package payout

import (
	"context"
	"time"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

// Provider is the narrow surface of the external payment provider. Implementations
// return an error wrapping domain.ErrExternalProvider when the provider definitively
// rejected the request; any other error leaves the outcome unknown.
type Provider interface {
	VerifyAccount(ctx context.Context, accountID string) (*AccountStatus, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	GetTransfer(ctx context.Context, id string) (*ObjectStatus, error)
	GetPayout(ctx context.Context, id string) (*ObjectStatus, error)
}

type AccountStatus struct {
	Verified           bool
	RequiresOnboarding bool
}

// Ready reports whether money may be sent to the account.
func (a *AccountStatus) Ready() bool {
	return a.Verified && !a.RequiresOnboarding
}

// TransferRequest moves funds from the platform balance to a connected account.
// IdempotencyKey is the payout id, so resubmitting cannot pay twice.
type TransferRequest struct {
	IdempotencyKey string
	Destination    string
	Amount         int64
	Currency       domain.Currency
	Metadata       map[string]string
}

type TransferResult struct {
	ExternalID string
}

// PayoutRequest sends a connected account's funds to its bank.
type PayoutRequest struct {
	IdempotencyKey string
	Account        string
	Amount         int64
	Currency       domain.Currency
	Metadata       map[string]string
}

type PayoutResult struct {
	ExternalID       string
	EstimatedArrival *time.Time
}

type ObjectStatus struct {
	Status        string
	FailureReason *string
}

// Provider object statuses.
const (
	ProviderStatusPending   = "pending"
	ProviderStatusInTransit = "in_transit"
	ProviderStatusPaid      = "paid"
	ProviderStatusFailed    = "failed"
	ProviderStatusCanceled  = "canceled"
	ProviderStatusReversed  = "reversed"
)

// StatusFromProvider maps a provider object status to the local payout status it
// implies. A created transfer or payout is already on its way, so pending maps to
// in_transit.
func StatusFromProvider(status string) (domain.PayoutStatus, bool) {
	switch status {
	case ProviderStatusPending, ProviderStatusInTransit:
		return domain.PayoutStatusInTransit, true
	case ProviderStatusPaid:
		return domain.PayoutStatusCompleted, true
	case ProviderStatusFailed:
		return domain.PayoutStatusFailed, true
	case ProviderStatusCanceled:
		return domain.PayoutStatusCancelled, true
	case ProviderStatusReversed:
		return domain.PayoutStatusRefunded, true
	}
	return "", false
}

// MetadataPayoutID is the metadata key echoed back by the provider in webhooks.
const MetadataPayoutID = "payout_id"
