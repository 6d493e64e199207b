package domain

import (
	"time"

	"github.com/google/uuid"
)

type PayeeStatus string

const (
	PayeeStatusNone         PayeeStatus = "none"
	PayeeStatusPending      PayeeStatus = "pending"
	PayeeStatusVerified     PayeeStatus = "verified"
	PayeeStatusDeauthorized PayeeStatus = "deauthorized"
)

type Collaborator struct {
	ID               uuid.UUID
	Email            string
	Name             string
	PayeeAccountID   *string
	PayeeStatus      PayeeStatus
	AvailableBalance int64
	PendingBalance   int64
	TotalEarnings    int64
	TotalPayouts     int64
	Version          int64
	CreatedAt        time.Time
}

// HasPayeeAccount reports whether payouts can be addressed to this collaborator at all.
func (c *Collaborator) HasPayeeAccount() bool {
	return c.PayeeAccountID != nil && *c.PayeeAccountID != "" && c.PayeeStatus != PayeeStatusDeauthorized
}

func (c *Collaborator) Balance() Balance {
	return Balance{
		Available:     c.AvailableBalance,
		Pending:       c.PendingBalance,
		TotalEarnings: c.TotalEarnings,
		TotalPayouts:  c.TotalPayouts,
	}
}

// Balance is the cached per-collaborator aggregate. It satisfies
// Available = TotalEarnings - Pending - TotalPayouts.
type Balance struct {
	Available     int64
	Pending       int64
	TotalEarnings int64
	TotalPayouts  int64
}

func (b Balance) Consistent() bool {
	return b.Available >= 0 && b.Pending >= 0 && b.TotalPayouts >= 0 &&
		b.Available == b.TotalEarnings-b.Pending-b.TotalPayouts
}
