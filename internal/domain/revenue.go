package domain

import (
	"time"

	"github.com/google/uuid"
)

type RevenueSource string

const (
	SourceStreaming       RevenueSource = "streaming"
	SourceLicensing       RevenueSource = "licensing"
	SourceSync            RevenueSource = "sync"
	SourceMarketplaceSale RevenueSource = "marketplace_sale"
	SourcePerformance     RevenueSource = "performance"
	SourceOther           RevenueSource = "other"
)

func (s RevenueSource) IsValid() bool {
	switch s {
	case SourceStreaming, SourceLicensing, SourceSync, SourceMarketplaceSale, SourcePerformance, SourceOther:
		return true
	}
	return false
}

type RevenueEvent struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Amount      int64
	Currency    Currency
	Source      RevenueSource
	ExternalRef *string
	BuyerID     *uuid.UUID
	SellerID    *uuid.UUID
	OccurredAt  time.Time
	CreatedAt   time.Time
}
