package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusProcessing WebhookEventStatus = "processing"
	WebhookEventStatusProcessed  WebhookEventStatus = "processed"
	WebhookEventStatusIgnored    WebhookEventStatus = "ignored"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

type WebhookEventType string

const (
	WebhookTransferCreated     WebhookEventType = "transfer.created"
	WebhookTransferPaid        WebhookEventType = "transfer.paid"
	WebhookTransferFailed      WebhookEventType = "transfer.failed"
	WebhookTransferReversed    WebhookEventType = "transfer.reversed"
	WebhookPayoutPaid          WebhookEventType = "payout.paid"
	WebhookPayoutFailed        WebhookEventType = "payout.failed"
	WebhookPayoutCanceled      WebhookEventType = "payout.canceled"
	WebhookAccountUpdated      WebhookEventType = "account.updated"
	WebhookAccountDeauthorized WebhookEventType = "account.deauthorized"
)

func (t WebhookEventType) IsValid() bool {
	switch t {
	case WebhookTransferCreated, WebhookTransferPaid, WebhookTransferFailed, WebhookTransferReversed,
		WebhookPayoutPaid, WebhookPayoutFailed, WebhookPayoutCanceled,
		WebhookAccountUpdated, WebhookAccountDeauthorized:
		return true
	}
	return false
}

type WebhookEvent struct {
	ID              uuid.UUID
	ProviderEventID string
	EventType       WebhookEventType
	ObjectID        string
	Payload         json.RawMessage
	Status          WebhookEventStatus
	Attempts        int
	LastAttempt     *time.Time
	LastError       *string
	CreatedAt       time.Time
}

// ProviderWebhook is the body the payment provider posts for every event.
type ProviderWebhook struct {
	EventID       string            `json:"event_id"`
	Type          WebhookEventType  `json:"type"`
	ObjectID      string            `json:"object_id"`
	Status        string            `json:"status,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
