package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxBasisPoints is 100.00%.
const MaxBasisPoints int64 = 10_000

const RoleOwner = "owner"

type RoyaltySplit struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	CollaboratorID uuid.UUID
	BasisPoints    int64
	Role           string
	EffectiveDate  time.Time
	LockedAt       *time.Time
	CreatedAt      time.Time
}

func (s *RoyaltySplit) IsLocked() bool {
	return s.LockedAt != nil
}

var hundred = decimal.NewFromInt(100)

// ParsePercentage converts a decimal percentage such as "12.5" into basis points (1250).
func ParsePercentage(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ParsePercentage: %w", ErrInvalidPercentage)
	}
	if d.IsNegative() || d.GreaterThan(hundred) {
		return 0, fmt.Errorf("ParsePercentage: %w", ErrInvalidPercentage)
	}
	if !d.Equal(d.Truncate(2)) {
		return 0, fmt.Errorf("ParsePercentage: %w", ErrInvalidPercentage)
	}
	return d.Shift(2).IntPart(), nil
}

func FormatBasisPoints(bp int64) string {
	return decimal.New(bp, -2).StringFixed(2)
}
