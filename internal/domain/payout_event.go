package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PayoutEventType string

const (
	PayoutEventTypeCreated   PayoutEventType = "created"
	PayoutEventTypeDeferred  PayoutEventType = "deferred"
	PayoutEventTypeInTransit PayoutEventType = "in_transit"
	PayoutEventTypeCompleted PayoutEventType = "completed"
	PayoutEventTypeFailed    PayoutEventType = "failed"
	PayoutEventTypeCancelled PayoutEventType = "cancelled"
	PayoutEventTypeRefunded  PayoutEventType = "refunded"
)

// EventTypeFor maps a target status to its audit event type.
func EventTypeFor(status PayoutStatus) PayoutEventType {
	switch status {
	case PayoutStatusInTransit:
		return PayoutEventTypeInTransit
	case PayoutStatusCompleted:
		return PayoutEventTypeCompleted
	case PayoutStatusFailed:
		return PayoutEventTypeFailed
	case PayoutStatusCancelled:
		return PayoutEventTypeCancelled
	case PayoutStatusRefunded:
		return PayoutEventTypeRefunded
	default:
		return PayoutEventTypeCreated
	}
}

type PayoutEvent struct {
	ID        uuid.UUID
	PayoutID  uuid.UUID
	EventType PayoutEventType
	Actor     string
	Payload   json.RawMessage
	CreatedAt time.Time
}
