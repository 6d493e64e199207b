package balance

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

type mockCollaboratorRepo struct {
	c       domain.Collaborator
	updates []domain.Balance
	err     error
}

func (m *mockCollaboratorRepo) GetByID(_ context.Context, _ uuid.UUID) (*domain.Collaborator, error) {
	c := m.c
	return &c, nil
}

func (m *mockCollaboratorRepo) GetForUpdate(_ context.Context, _ *sql.Tx, _ uuid.UUID) (*domain.Collaborator, error) {
	c := m.c
	return &c, nil
}

func (m *mockCollaboratorRepo) UpdateBalances(_ context.Context, _ *sql.Tx, _ uuid.UUID, b domain.Balance, newVersion int64) error {
	if m.err != nil {
		return m.err
	}
	m.updates = append(m.updates, b)
	m.c.AvailableBalance = b.Available
	m.c.PendingBalance = b.Pending
	m.c.TotalEarnings = b.TotalEarnings
	m.c.TotalPayouts = b.TotalPayouts
	m.c.Version = newVersion
	return nil
}

type stubLedger struct{ sum int64 }

func (s stubLedger) SumByCollaborator(context.Context, uuid.UUID) (int64, error) { return s.sum, nil }

type stubPayouts struct{ sums map[domain.PayoutStatus]int64 }

func (s stubPayouts) SumByStatus(context.Context, uuid.UUID) (map[domain.PayoutStatus]int64, error) {
	return s.sums, nil
}

func newAggregator(c domain.Collaborator) (*Aggregator, *mockCollaboratorRepo) {
	repo := &mockCollaboratorRepo{c: c}
	return NewAggregator(repo, stubLedger{}, stubPayouts{}), repo
}

func TestAggregator_Lifecycle(t *testing.T) {
	ctx := context.Background()
	agg, repo := newAggregator(domain.Collaborator{ID: uuid.New()})
	id := repo.c.ID

	_, err := agg.CreditEarnings(ctx, nil, id, 10000)
	require.NoError(t, err)

	b, err := agg.Reserve(ctx, nil, id, 4000)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Available: 6000, Pending: 4000, TotalEarnings: 10000}, *b)

	b, err = agg.Settle(ctx, nil, id, 3000)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Available: 6000, Pending: 1000, TotalEarnings: 10000, TotalPayouts: 3000}, *b)

	b, err = agg.Compensate(ctx, nil, id, 1000)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Available: 7000, Pending: 0, TotalEarnings: 10000, TotalPayouts: 3000}, *b)

	b, err = agg.Reverse(ctx, nil, id, 3000)
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Available: 10000, TotalEarnings: 10000}, *b)

	for _, u := range repo.updates {
		assert.True(t, u.Consistent(), "%+v", u)
	}
	assert.Equal(t, int64(5), repo.c.Version)
}

func TestAggregator_Reserve(t *testing.T) {
	tests := []struct {
		name      string
		available int64
		amount    int64
		wantErr   error
	}{
		{name: "exact balance", available: 5000, amount: 5000},
		{name: "insufficient", available: 5000, amount: 5001, wantErr: domain.ErrInsufficientBalance},
		{name: "zero amount", available: 5000, amount: 0, wantErr: domain.ErrInvalidAmount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			agg, repo := newAggregator(domain.Collaborator{
				ID:               uuid.New(),
				AvailableBalance: tc.available,
				TotalEarnings:    tc.available,
			})
			_, err := agg.Reserve(context.Background(), nil, repo.c.ID, tc.amount)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, repo.updates)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(0), repo.c.AvailableBalance)
		})
	}
}

func TestAggregator_SettleWithoutReservationFails(t *testing.T) {
	agg, repo := newAggregator(domain.Collaborator{ID: uuid.New(), AvailableBalance: 100, TotalEarnings: 100})
	_, err := agg.Settle(context.Background(), nil, repo.c.ID, 50)
	require.ErrorIs(t, err, domain.ErrBalanceInvariant)
	assert.Empty(t, repo.updates)
}

func TestAggregator_Audit(t *testing.T) {
	id := uuid.New()
	repo := &mockCollaboratorRepo{c: domain.Collaborator{
		ID: id, AvailableBalance: 3000, PendingBalance: 2000, TotalEarnings: 10000, TotalPayouts: 5000,
	}}
	payouts := stubPayouts{sums: map[domain.PayoutStatus]int64{
		domain.PayoutStatusPending:   1500,
		domain.PayoutStatusInTransit: 500,
		domain.PayoutStatusCompleted: 5000,
		domain.PayoutStatusFailed:    700,
	}}

	report, err := NewAggregator(repo, stubLedger{sum: 10000}, payouts).Audit(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, report.Drift())

	report, err = NewAggregator(repo, stubLedger{sum: 9000}, payouts).Audit(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, report.Drift())
	assert.Equal(t, int64(2000), report.Derived.Available)
}
