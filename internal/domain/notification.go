package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationPayoutCompleted          NotificationKind = "payout_completed"
	NotificationPayoutFailed             NotificationKind = "payout_failed"
	NotificationPayoutCancelled          NotificationKind = "payout_cancelled"
	NotificationPayoutRefunded           NotificationKind = "payout_refunded"
	NotificationPayoutRequiresOnboarding NotificationKind = "payout_requires_onboarding"
)

// NotificationFor returns the notification emitted when a payout reaches status, if any.
func NotificationFor(status PayoutStatus) (NotificationKind, bool) {
	switch status {
	case PayoutStatusCompleted:
		return NotificationPayoutCompleted, true
	case PayoutStatusFailed:
		return NotificationPayoutFailed, true
	case PayoutStatusCancelled:
		return NotificationPayoutCancelled, true
	case PayoutStatusRefunded:
		return NotificationPayoutRefunded, true
	}
	return "", false
}

type Notification struct {
	ID             uuid.UUID
	CollaboratorID uuid.UUID
	Kind           NotificationKind
	Payload        json.RawMessage
	CreatedAt      time.Time
}
