package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one collaborator's share of a revenue event. Amount never changes
// after posting; IsPaid flips once when a transfer settling it completes.
type LedgerEntry struct {
	ID             uuid.UUID
	RevenueEventID uuid.UUID
	CollaboratorID uuid.UUID
	ProjectID      uuid.UUID
	SplitID        *uuid.UUID
	Amount         int64
	BasisPoints    int64
	IsPaid         bool
	PaidAt         *time.Time
	CreatedAt      time.Time
}
