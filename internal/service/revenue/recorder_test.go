package revenue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/service/revenue"
	"github.com/josh-kwaku/royalty-settlement/internal/testutil"
)

func entryFor(entries []domain.LedgerEntry, collaboratorID uuid.UUID) *domain.LedgerEntry {
	for i := range entries {
		if entries[i].CollaboratorID == collaboratorID {
			return &entries[i]
		}
	}
	return nil
}

func TestRecordRevenue_SplitsByPercentage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	a := testutil.SeedCollaborator(t, db, "a@test.com", "acct_a")
	b := testutil.SeedCollaborator(t, db, "b@test.com", "acct_b")
	c := testutil.SeedCollaborator(t, db, "c@test.com", "acct_c")
	project := testutil.SeedProject(t, db, "Album", &a.ID)

	start := time.Now().UTC().Add(-48 * time.Hour)
	testutil.SeedSplit(t, db, project.ID, a.ID, 6000, start)
	testutil.SeedSplit(t, db, project.ID, b.ID, 2500, start)
	testutil.SeedSplit(t, db, project.ID, c.ID, 1500, start)

	res, err := stack.Recorder.RecordRevenue(ctx, revenue.RecordRequest{
		ProjectID: project.ID,
		Amount:    10000,
		Source:    domain.SourceStreaming,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)

	var sum int64
	for _, e := range res.Entries {
		sum += e.Amount
	}
	assert.Equal(t, int64(10000), sum)
	assert.Equal(t, int64(6000), entryFor(res.Entries, a.ID).Amount)
	assert.Equal(t, int64(2500), entryFor(res.Entries, b.ID).Amount)
	assert.Equal(t, int64(1500), entryFor(res.Entries, c.ID).Amount)

	assert.Equal(t, domain.Balance{Available: 6000, TotalEarnings: 6000}, testutil.GetBalance(t, db, a.ID))
	assert.Equal(t, domain.Balance{Available: 2500, TotalEarnings: 2500}, testutil.GetBalance(t, db, b.ID))

	splits, err := stack.Splits.ListSplits(ctx, project.ID)
	require.NoError(t, err)
	for _, s := range splits {
		assert.True(t, s.IsLocked(), "split %s should be locked after posting", s.ID)
	}
}

func TestRecordRevenue_UsesSplitsActiveAtOccurrence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	a := testutil.SeedCollaborator(t, db, "a@test.com", "")
	b := testutil.SeedCollaborator(t, db, "b@test.com", "")
	project := testutil.SeedProject(t, db, "Single", nil)

	now := time.Now().UTC()
	testutil.SeedSplit(t, db, project.ID, a.ID, 10000, now.Add(-72*time.Hour))
	testutil.SeedSplit(t, db, project.ID, a.ID, 5000, now.Add(-24*time.Hour))
	testutil.SeedSplit(t, db, project.ID, b.ID, 5000, now.Add(-24*time.Hour))

	res, err := stack.Recorder.RecordRevenue(ctx, revenue.RecordRequest{
		ProjectID:  project.ID,
		Amount:     1000,
		Source:     domain.SourceLicensing,
		OccurredAt: now.Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, a.ID, res.Entries[0].CollaboratorID)
	assert.Equal(t, int64(1000), res.Entries[0].Amount)

	res, err = stack.Recorder.RecordRevenue(ctx, revenue.RecordRequest{
		ProjectID: project.ID,
		Amount:    1000,
		Source:    domain.SourceLicensing,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, int64(500), entryFor(res.Entries, b.ID).Amount)
}

func TestRecordRevenue_OwnerReceivesUnallocated(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	owner := testutil.SeedCollaborator(t, db, "owner@test.com", "")
	guest := testutil.SeedCollaborator(t, db, "guest@test.com", "")
	project := testutil.SeedProject(t, db, "EP", &owner.ID)
	testutil.SeedSplit(t, db, project.ID, guest.ID, 3000, time.Now().UTC().Add(-time.Hour))

	res, err := stack.Recorder.RecordRevenue(ctx, revenue.RecordRequest{
		ProjectID: project.ID,
		Amount:    999,
		Source:    domain.SourceSync,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, int64(299), entryFor(res.Entries, guest.ID).Amount)
	assert.Equal(t, int64(700), entryFor(res.Entries, owner.ID).Amount)
	assert.Nil(t, entryFor(res.Entries, owner.ID).SplitID)
}

func TestRecordRevenue_NoSplitsNoOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	project := testutil.SeedProject(t, db, "Orphan", nil)
	ref := "orphan-1"

	_, err := stack.Recorder.RecordRevenue(ctx, revenue.RecordRequest{
		ProjectID:   project.ID,
		Amount:      500,
		Source:      domain.SourceOther,
		ExternalRef: &ref,
	})
	require.ErrorIs(t, err, domain.ErrNoActiveSplits)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM revenue_events WHERE project_id = $1`, project.ID).Scan(&count))
	assert.Zero(t, count, "recording must roll back with the posting")
}

func TestRecordRevenue_ExternalRefReplay(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	owner := testutil.SeedCollaborator(t, db, "owner@test.com", "")
	project := testutil.SeedProject(t, db, "Catalog", &owner.ID)
	ref := "dsp-statement-2024-06"

	req := revenue.RecordRequest{
		ProjectID:   project.ID,
		Amount:      4200,
		Source:      domain.SourceStreaming,
		ExternalRef: &ref,
	}
	first, err := stack.Recorder.RecordRevenue(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := stack.Recorder.RecordRevenue(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Event.ID, second.Event.ID)
	assert.Len(t, second.Entries, 1)

	assert.Equal(t, int64(4200), testutil.GetBalance(t, db, owner.ID).TotalEarnings)
}

func TestRecordRevenue_ExternalRefConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	owner := testutil.SeedCollaborator(t, db, "owner@test.com", "")
	project := testutil.SeedProject(t, db, "Catalog", &owner.ID)
	other := testutil.SeedProject(t, db, "Other catalog", &owner.ID)
	ref := "dsp-statement-2024-07"

	_, err := stack.Recorder.RecordRevenue(ctx, revenue.RecordRequest{
		ProjectID:   project.ID,
		Amount:      4200,
		Source:      domain.SourceStreaming,
		ExternalRef: &ref,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  revenue.RecordRequest
	}{
		{"different amount", revenue.RecordRequest{ProjectID: project.ID, Amount: 4300, Source: domain.SourceStreaming, ExternalRef: &ref}},
		{"different project", revenue.RecordRequest{ProjectID: other.ID, Amount: 4200, Source: domain.SourceStreaming, ExternalRef: &ref}},
		{"different source", revenue.RecordRequest{ProjectID: project.ID, Amount: 4200, Source: domain.SourceLicensing, ExternalRef: &ref}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stack.Recorder.RecordRevenue(ctx, tc.req)
			require.ErrorIs(t, err, domain.ErrExternalRefConflict)
		})
	}

	assert.Equal(t, int64(4200), testutil.GetBalance(t, db, owner.ID).TotalEarnings)
}

func TestRecordRevenue_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	project := testutil.SeedProject(t, db, "Any", nil)

	tests := []struct {
		name    string
		req     revenue.RecordRequest
		wantErr error
	}{
		{
			name:    "zero amount",
			req:     revenue.RecordRequest{ProjectID: project.ID, Amount: 0, Source: domain.SourceStreaming},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			req:     revenue.RecordRequest{ProjectID: project.ID, Amount: -5, Source: domain.SourceStreaming},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "unknown source",
			req:     revenue.RecordRequest{ProjectID: project.ID, Amount: 100, Source: "merch"},
			wantErr: domain.ErrInvalidSource,
		},
		{
			name:    "unknown project",
			req:     revenue.RecordRequest{ProjectID: uuid.New(), Amount: 100, Source: domain.SourceStreaming},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stack.Recorder.RecordRevenue(ctx, tc.req)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRecordSaleRevenue_TransfersEachShare(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 500)
	ctx := context.Background()

	seller := testutil.SeedCollaborator(t, db, "seller@test.com", "acct_seller")
	producer := testutil.SeedCollaborator(t, db, "producer@test.com", "")
	buyer := uuid.New()
	project := testutil.SeedProject(t, db, "Beat", &seller.ID)
	start := time.Now().UTC().Add(-time.Hour)
	testutil.SeedSplit(t, db, project.ID, seller.ID, 8000, start)
	testutil.SeedSplit(t, db, project.ID, producer.ID, 2000, start)

	res, err := stack.Recorder.RecordSaleRevenue(ctx, revenue.SaleRequest{
		ProjectID: project.ID,
		Amount:    10000,
		BuyerID:   buyer,
		SellerID:  seller.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceMarketplaceSale, res.Event.Source)
	require.Len(t, res.Payouts, 2)

	for _, p := range res.Payouts {
		assert.Equal(t, domain.PayoutKindTransferOnSale, p.Kind)
		switch p.CollaboratorID {
		case seller.ID:
			assert.Equal(t, domain.PayoutStatusInTransit, p.Status)
			assert.Equal(t, int64(8000), p.Amount)
			assert.Equal(t, int64(400), p.FeeAmount)
			assert.NotNil(t, p.ExternalReferenceID)
		case producer.ID:
			assert.Equal(t, domain.PayoutStatusPending, p.Status)
			assert.True(t, p.RequiresOnboarding)
		}
	}

	assert.Equal(t, domain.Balance{Pending: 8000, TotalEarnings: 8000}, testutil.GetBalance(t, db, seller.ID))
	assert.Equal(t, domain.Balance{Pending: 2000, TotalEarnings: 2000}, testutil.GetBalance(t, db, producer.ID))
	assert.Equal(t, 1, testutil.CountNotifications(t, db, producer.ID, domain.NotificationPayoutRequiresOnboarding))
	assert.Equal(t, 1, stack.Provider.SubmissionCount())
}

func TestRecordSaleRevenue_RequiresParties(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)

	_, err := stack.Recorder.RecordSaleRevenue(context.Background(), revenue.SaleRequest{
		ProjectID: uuid.New(),
		Amount:    100,
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}
