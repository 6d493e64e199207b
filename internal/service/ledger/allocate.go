package ledger

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

// Share is one collaborator's claim on a revenue event.
type Share struct {
	CollaboratorID uuid.UUID
	SplitID        *uuid.UUID
	BasisPoints    int64
	// Rank orders shares by split creation; the lowest rank wins remainder ties.
	Rank int
}

type Allocation struct {
	Share
	Amount int64
}

// Allocate divides amount across shares as floor(amount * bp / 10000) each, then gives
// the truncation remainder to the largest share. The result always sums to amount.
func Allocate(amount int64, shares []Share) ([]Allocation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("Allocate: %w", domain.ErrInvalidAmount)
	}
	if len(shares) == 0 {
		return nil, fmt.Errorf("Allocate: %w", domain.ErrNoActiveSplits)
	}

	var total int64
	for _, s := range shares {
		if s.BasisPoints < 0 {
			return nil, fmt.Errorf("Allocate: %w", domain.ErrInvalidSplitConfiguration)
		}
		total += s.BasisPoints
	}
	if total > domain.MaxBasisPoints {
		return nil, fmt.Errorf("Allocate: %w", domain.ErrInvalidSplitConfiguration)
	}
	if total == 0 {
		return nil, fmt.Errorf("Allocate: %w", domain.ErrNoActiveSplits)
	}

	gross := decimal.NewFromInt(amount)
	out := make([]Allocation, len(shares))
	var allocated int64
	largest := 0
	for i, s := range shares {
		part := gross.Mul(decimal.NewFromInt(s.BasisPoints)).Shift(-4).Floor().IntPart()
		out[i] = Allocation{Share: s, Amount: part}
		allocated += part

		l := shares[largest]
		if s.BasisPoints > l.BasisPoints || (s.BasisPoints == l.BasisPoints && s.Rank < l.Rank) {
			largest = i
		}
	}
	out[largest].Amount += amount - allocated
	return out, nil
}

// BuildShares turns the active splits of a project into shares. Any percentage left
// unallocated goes to the project owner, merged into the owner's own split if there
// is one.
func BuildShares(active []domain.RoyaltySplit, ownerID *uuid.UUID) ([]Share, error) {
	ordered := make([]domain.RoyaltySplit, len(active))
	copy(ordered, active)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID.String() < ordered[j].ID.String()
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	shares := make([]Share, 0, len(ordered)+1)
	var total int64
	for i, sp := range ordered {
		if sp.BasisPoints == 0 {
			continue
		}
		id := sp.ID
		shares = append(shares, Share{
			CollaboratorID: sp.CollaboratorID,
			SplitID:        &id,
			BasisPoints:    sp.BasisPoints,
			Rank:           i,
		})
		total += sp.BasisPoints
	}
	if total > domain.MaxBasisPoints {
		return nil, fmt.Errorf("BuildShares: %w", domain.ErrInvalidSplitConfiguration)
	}

	residual := domain.MaxBasisPoints - total
	if residual > 0 && ownerID != nil {
		merged := false
		for i := range shares {
			if shares[i].CollaboratorID == *ownerID {
				shares[i].BasisPoints += residual
				merged = true
				break
			}
		}
		if !merged {
			shares = append(shares, Share{
				CollaboratorID: *ownerID,
				BasisPoints:    residual,
				Rank:           len(ordered),
			})
		}
	}

	if len(shares) == 0 {
		return nil, fmt.Errorf("BuildShares: %w", domain.ErrNoActiveSplits)
	}
	return shares, nil
}
