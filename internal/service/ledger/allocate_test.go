package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

func sumAllocations(allocs []Allocation) int64 {
	var total int64
	for _, a := range allocs {
		total += a.Amount
	}
	return total
}

func TestAllocate(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name   string
		amount int64
		shares []Share
		want   []int64
	}{
		{
			name:   "60/25/15 of 10000",
			amount: 10000,
			shares: []Share{
				{CollaboratorID: a, BasisPoints: 6000, Rank: 0},
				{CollaboratorID: b, BasisPoints: 2500, Rank: 1},
				{CollaboratorID: c, BasisPoints: 1500, Rank: 2},
			},
			want: []int64{6000, 2500, 1500},
		},
		{
			name:   "remainder goes to largest share",
			amount: 100,
			shares: []Share{
				{CollaboratorID: a, BasisPoints: 3333, Rank: 0},
				{CollaboratorID: b, BasisPoints: 3333, Rank: 1},
				{CollaboratorID: c, BasisPoints: 3334, Rank: 2},
			},
			want: []int64{33, 33, 34},
		},
		{
			name:   "tie broken by earliest split",
			amount: 101,
			shares: []Share{
				{CollaboratorID: a, BasisPoints: 5000, Rank: 1},
				{CollaboratorID: b, BasisPoints: 5000, Rank: 0},
			},
			want: []int64{50, 51},
		},
		{
			name:   "one minor unit among three",
			amount: 1,
			shares: []Share{
				{CollaboratorID: a, BasisPoints: 4000, Rank: 0},
				{CollaboratorID: b, BasisPoints: 3000, Rank: 1},
				{CollaboratorID: c, BasisPoints: 3000, Rank: 2},
			},
			want: []int64{1, 0, 0},
		},
		{
			name:   "unallocated percentage without owner goes to largest share",
			amount: 999,
			shares: []Share{
				{CollaboratorID: a, BasisPoints: 5000, Rank: 0},
				{CollaboratorID: b, BasisPoints: 2000, Rank: 1},
			},
			want: []int64{800, 199},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Allocate(tc.amount, tc.shares)
			require.NoError(t, err)
			require.Len(t, got, len(tc.want))
			for i, w := range tc.want {
				assert.Equal(t, w, got[i].Amount, "share %d", i)
			}
			assert.Equal(t, tc.amount, sumAllocations(got))
		})
	}
}

func TestAllocate_Errors(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		amount  int64
		shares  []Share
		wantErr error
	}{
		{name: "zero amount", amount: 0, shares: []Share{{CollaboratorID: a, BasisPoints: 10000}}, wantErr: domain.ErrInvalidAmount},
		{name: "negative amount", amount: -5, shares: []Share{{CollaboratorID: a, BasisPoints: 10000}}, wantErr: domain.ErrInvalidAmount},
		{name: "no shares", amount: 100, wantErr: domain.ErrNoActiveSplits},
		{
			name:    "over 100%",
			amount:  100,
			shares:  []Share{{CollaboratorID: a, BasisPoints: 6000}, {CollaboratorID: b, BasisPoints: 5000}},
			wantErr: domain.ErrInvalidSplitConfiguration,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Allocate(tc.amount, tc.shares)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAllocate_SumInvariant(t *testing.T) {
	shares := []Share{
		{CollaboratorID: uuid.New(), BasisPoints: 1234, Rank: 0},
		{CollaboratorID: uuid.New(), BasisPoints: 4321, Rank: 1},
		{CollaboratorID: uuid.New(), BasisPoints: 777, Rank: 2},
		{CollaboratorID: uuid.New(), BasisPoints: 3668, Rank: 3},
	}
	for amount := int64(1); amount <= 5000; amount += 7 {
		got, err := Allocate(amount, shares)
		require.NoError(t, err)
		require.Equal(t, amount, sumAllocations(got), "amount %d", amount)
		for _, a := range got {
			require.GreaterOrEqual(t, a.Amount, int64(0))
		}
	}
}

func split(collaborator uuid.UUID, bp int64, created time.Time) domain.RoyaltySplit {
	return domain.RoyaltySplit{
		ID:             uuid.New(),
		CollaboratorID: collaborator,
		BasisPoints:    bp,
		CreatedAt:      created,
	}
}

func TestBuildShares(t *testing.T) {
	owner, a, b := uuid.New(), uuid.New(), uuid.New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("full allocation ignores owner", func(t *testing.T) {
		shares, err := BuildShares([]domain.RoyaltySplit{
			split(a, 6000, t0),
			split(b, 4000, t0.Add(time.Minute)),
		}, &owner)
		require.NoError(t, err)
		require.Len(t, shares, 2)
		assert.Equal(t, a, shares[0].CollaboratorID)
		assert.Equal(t, 0, shares[0].Rank)
	})

	t.Run("residual goes to owner", func(t *testing.T) {
		shares, err := BuildShares([]domain.RoyaltySplit{split(a, 6000, t0)}, &owner)
		require.NoError(t, err)
		require.Len(t, shares, 2)
		assert.Equal(t, owner, shares[1].CollaboratorID)
		assert.Equal(t, int64(4000), shares[1].BasisPoints)
		assert.Nil(t, shares[1].SplitID)
	})

	t.Run("residual merges into owner split", func(t *testing.T) {
		shares, err := BuildShares([]domain.RoyaltySplit{
			split(a, 6000, t0),
			split(owner, 1000, t0.Add(time.Minute)),
		}, &owner)
		require.NoError(t, err)
		require.Len(t, shares, 2)
		assert.Equal(t, int64(4000), shares[1].BasisPoints)
		assert.NotNil(t, shares[1].SplitID)
	})

	t.Run("no splits gives owner everything", func(t *testing.T) {
		shares, err := BuildShares(nil, &owner)
		require.NoError(t, err)
		require.Len(t, shares, 1)
		assert.Equal(t, domain.MaxBasisPoints, shares[0].BasisPoints)
	})

	t.Run("no splits and no owner", func(t *testing.T) {
		_, err := BuildShares(nil, nil)
		require.ErrorIs(t, err, domain.ErrNoActiveSplits)
	})

	t.Run("ordered by creation", func(t *testing.T) {
		shares, err := BuildShares([]domain.RoyaltySplit{
			split(b, 5000, t0.Add(time.Hour)),
			split(a, 5000, t0),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, a, shares[0].CollaboratorID)
		assert.Equal(t, b, shares[1].CollaboratorID)
	})
}
