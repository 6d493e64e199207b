package payout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
	"github.com/josh-kwaku/royalty-settlement/internal/service/revenue"
	"github.com/josh-kwaku/royalty-settlement/internal/testutil"
)

func TestRequestWithdrawal_DrainsBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 5000)

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusInTransit, p.Status)
	assert.Equal(t, domain.PayoutKindWithdrawal, p.Kind)
	require.NotNil(t, p.ExternalReferenceID)
	assert.Equal(t, domain.Balance{Pending: 5000, TotalEarnings: 5000}, testutil.GetBalance(t, db, c.ID))

	_, err = stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 1})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, 1, testutil.CountPayouts(t, db, c.ID))
}

func TestRequestWithdrawal_ConcurrentOnlyOneSucceeds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 5000)

	const workers = 2
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 3000})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	}
	assert.Equal(t, 1, succeeded)

	b := testutil.GetBalance(t, db, c.ID)
	assert.Equal(t, int64(2000), b.Available)
	assert.True(t, b.Consistent())
}

func TestRequestWithdrawal_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	onboarded := testutil.SeedCollaborator(t, db, "ok@test.com", "acct_ok")
	testutil.SeedEarnings(t, db, onboarded.ID, 100)
	unboarded := testutil.SeedCollaborator(t, db, "new@test.com", "")
	testutil.SeedEarnings(t, db, unboarded.ID, 100)

	tests := []struct {
		name    string
		req     payout.WithdrawalRequest
		wantErr error
	}{
		{name: "zero amount", req: payout.WithdrawalRequest{CollaboratorID: onboarded.ID, Amount: 0}, wantErr: domain.ErrInvalidAmount},
		{name: "no payee account", req: payout.WithdrawalRequest{CollaboratorID: unboarded.ID, Amount: 50}, wantErr: domain.ErrPayeeNotOnboarded},
		{name: "unknown collaborator", req: payout.WithdrawalRequest{CollaboratorID: uuid.New(), Amount: 50}, wantErr: domain.ErrNotFound},
		{name: "more than available", req: payout.WithdrawalRequest{CollaboratorID: onboarded.ID, Amount: 101}, wantErr: domain.ErrInsufficientBalance},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stack.Payouts.RequestWithdrawal(ctx, tc.req)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Equal(t, domain.Balance{Available: 100, TotalEarnings: 100}, testutil.GetBalance(t, db, onboarded.ID))
	assert.Equal(t, domain.Balance{Available: 100, TotalEarnings: 100}, testutil.GetBalance(t, db, unboarded.ID))
	assert.Zero(t, testutil.CountPayouts(t, db, unboarded.ID))
	assert.Equal(t, 1, testutil.CountNotifications(t, db, unboarded.ID, domain.NotificationPayoutRequiresOnboarding))
}

func TestRequestWithdrawal_ProviderRejectionCompensates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 5000)
	stack.Provider.SetSubmitErr(fmt.Errorf("account closed: %w", domain.ErrExternalProvider))

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 2000})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, p.Status)
	require.NotNil(t, p.FailureReason)

	assert.Equal(t, domain.Balance{Available: 5000, TotalEarnings: 5000}, testutil.GetBalance(t, db, c.ID))
	assert.Equal(t, 1, testutil.CountNotifications(t, db, c.ID, domain.NotificationPayoutFailed))
}

func TestRequestWithdrawal_UnknownOutcomeStaysPendingAndResubmits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 5000)
	stack.Provider.SetSubmitErr(errors.New("connection reset"))

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 2000})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, p.Status)
	assert.Equal(t, 1, p.SubmitAttempts)
	assert.Equal(t, domain.Balance{Available: 3000, Pending: 2000, TotalEarnings: 5000}, testutil.GetBalance(t, db, c.ID))

	_, err = stack.Payouts.CancelPayout(ctx, c.ID, p.ID)
	require.ErrorIs(t, err, domain.ErrPayoutNotCancellable, "an in-flight submission cannot be cancelled")

	stack.Provider.SetSubmitErr(nil)
	p, err = stack.Payouts.Resubmit(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusInTransit, p.Status)
	assert.Equal(t, 2, stack.Provider.SubmissionCount())
}

func TestTransition_InTransitThenFailedRestoresBalance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 5000)
	before := testutil.GetBalance(t, db, c.ID)

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 1234})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusInTransit, p.Status)

	failed, applied, err := stack.Payouts.Transition(ctx, payout.TransitionRequest{
		PayoutID:      p.ID,
		To:            domain.PayoutStatusFailed,
		FailureReason: ptr("insufficient_funds"),
		Actor:         payout.ActorWebhook,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.PayoutStatusFailed, failed.Status)
	assert.Equal(t, before, testutil.GetBalance(t, db, c.ID))

	events, err := stack.Payouts.ListEvents(ctx, p.ID)
	require.NoError(t, err)
	var types []domain.PayoutEventType
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []domain.PayoutEventType{
		domain.PayoutEventTypeCreated,
		domain.PayoutEventTypeInTransit,
		domain.PayoutEventTypeFailed,
	}, types)
}

func TestTransition_ReplayIsNoOp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 5000)

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 5000})
	require.NoError(t, err)

	req := payout.TransitionRequest{PayoutID: p.ID, To: domain.PayoutStatusCompleted, Actor: payout.ActorWebhook}
	_, applied, err := stack.Payouts.Transition(ctx, req)
	require.NoError(t, err)
	assert.True(t, applied)
	settled := testutil.GetBalance(t, db, c.ID)
	assert.Equal(t, domain.Balance{TotalEarnings: 5000, TotalPayouts: 5000}, settled)

	again, applied, err := stack.Payouts.Transition(ctx, req)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.PayoutStatusCompleted, again.Status)
	assert.Equal(t, settled, testutil.GetBalance(t, db, c.ID))

	// A late non-advancing event must not move a terminal payout.
	_, _, err = stack.Payouts.Transition(ctx, payout.TransitionRequest{PayoutID: p.ID, To: domain.PayoutStatusInTransit})
	require.ErrorIs(t, err, domain.ErrPayoutTerminal)
	_, _, err = stack.Payouts.Transition(ctx, payout.TransitionRequest{PayoutID: p.ID, To: domain.PayoutStatusFailed})
	require.ErrorIs(t, err, domain.ErrPayoutTerminal)
	assert.Equal(t, settled, testutil.GetBalance(t, db, c.ID))
}

func TestTransferOnSale_CompletedThenReversed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	seller := testutil.SeedCollaborator(t, db, "seller@test.com", "acct_seller")
	project := testutil.SeedProject(t, db, "Sample pack", &seller.ID)

	res, err := stack.Recorder.RecordSaleRevenue(ctx, revenue.SaleRequest{
		ProjectID: project.ID,
		Amount:    2500,
		BuyerID:   uuid.New(),
		SellerID:  seller.ID,
	})
	require.NoError(t, err)
	require.Len(t, res.Payouts, 1)
	p := res.Payouts[0]
	require.Equal(t, domain.PayoutStatusInTransit, p.Status)

	_, applied, err := stack.Payouts.ApplyProviderStatus(ctx, p.ID, domain.PayoutStatusCompleted, "", nil, payout.ActorWebhook, nil)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, testutil.CountPaidEntries(t, db, res.Event.ID))
	assert.Equal(t, domain.Balance{TotalEarnings: 2500, TotalPayouts: 2500}, testutil.GetBalance(t, db, seller.ID))

	refunded, applied, err := stack.Payouts.ApplyProviderStatus(ctx, p.ID, domain.PayoutStatusRefunded, "", nil, payout.ActorWebhook, nil)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.PayoutStatusRefunded, refunded.Status)
	assert.Equal(t, domain.Balance{Available: 2500, TotalEarnings: 2500}, testutil.GetBalance(t, db, seller.ID))

	entries, _, err := stack.Ledger.GetByCollaborator(ctx, seller.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2500), entries[0].Amount)
	assert.Equal(t, 1, testutil.CountNotifications(t, db, seller.ID, domain.NotificationPayoutRefunded))
}

func TestApplyProviderStatus_ReversalBeforeCompletionFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 800)

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 800})
	require.NoError(t, err)

	got, applied, err := stack.Payouts.ApplyProviderStatus(ctx, p.ID, domain.PayoutStatusRefunded, "", nil, payout.ActorWebhook, nil)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.PayoutStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "reversed", *got.FailureReason)
	assert.Equal(t, domain.Balance{Available: 800, TotalEarnings: 800}, testutil.GetBalance(t, db, c.ID))
}

func TestCancelPayout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	other := testutil.SeedCollaborator(t, db, "other@test.com", "acct_other")
	testutil.SeedEarnings(t, db, c.ID, 3000)
	stack.Provider.SetUnverified("acct_artist", true)

	deferred, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 1000})
	require.NoError(t, err)
	require.True(t, deferred.RequiresOnboarding)

	_, err = stack.Payouts.CancelPayout(ctx, other.ID, deferred.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	cancelled, err := stack.Payouts.CancelPayout(ctx, c.ID, deferred.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.Balance{Available: 3000, TotalEarnings: 3000}, testutil.GetBalance(t, db, c.ID))

	_, err = stack.Payouts.CancelPayout(ctx, c.ID, deferred.ID)
	require.ErrorIs(t, err, domain.ErrPayoutTerminal)

	stack.Provider.SetUnverified("acct_artist", false)
	sent, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 1000})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusInTransit, sent.Status)

	_, err = stack.Payouts.CancelPayout(ctx, c.ID, sent.ID)
	require.ErrorIs(t, err, domain.ErrPayoutNotCancellable)
}

func TestReleaseDeferred(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 3000)
	stack.Provider.SetUnverified("acct_artist", true)

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 3000})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, p.Status)
	assert.True(t, p.RequiresOnboarding)
	assert.Equal(t, 1, testutil.CountNotifications(t, db, c.ID, domain.NotificationPayoutRequiresOnboarding))
	assert.Zero(t, stack.Provider.SubmissionCount())

	released, err := stack.Payouts.ReleaseDeferred(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, released, "still not verified")

	stack.Provider.SetUnverified("acct_artist", false)
	released, err = stack.Payouts.ReleaseDeferred(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, domain.PayoutStatusInTransit, testutil.GetPayoutStatus(t, db, p.ID))

	collab, err := stack.Collaborators.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayeeStatusVerified, collab.PayeeStatus)
}

func TestRefreshFromProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 900)

	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 900})
	require.NoError(t, err)
	require.NotNil(t, p.ExternalReferenceID)

	unchanged, err := stack.Payouts.RefreshFromProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusInTransit, unchanged.Status)

	stack.Provider.SetStatus(*p.ExternalReferenceID, payout.ProviderStatusPaid)
	done, err := stack.Payouts.RefreshFromProvider(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.WithinDuration(t, time.Now(), *done.CompletedAt, time.Minute)
}

func ptr(s string) *string {
	return &s
}

func TestResubmit_LostResponseThenRejectedVerificationStillSettles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 5000)

	// The provider creates the payout but the answer never reaches us.
	stack.Provider.SetLoseResponses(true)
	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 5000})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusPending, p.Status)
	require.Equal(t, 1, p.SubmitAttempts)
	require.Nil(t, p.ExternalReferenceID)

	stack.Provider.SetLoseResponses(false)
	stack.Provider.SetVerifyErr(fmt.Errorf("account closed: %w", domain.ErrExternalProvider))

	p, err = stack.Payouts.Resubmit(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusInTransit, p.Status, "the resend replays the landed payout instead of failing it")
	ref, ok := stack.Provider.Created(p.ID.String())
	require.True(t, ok)
	require.NotNil(t, p.ExternalReferenceID)
	assert.Equal(t, ref, *p.ExternalReferenceID)
	assert.Equal(t, domain.Balance{Pending: 5000, TotalEarnings: 5000}, testutil.GetBalance(t, db, c.ID))

	_, applied, err := stack.Payouts.ApplyProviderStatus(ctx, p.ID, domain.PayoutStatusCompleted, ref, nil, payout.ActorWebhook, nil)
	require.NoError(t, err)
	assert.True(t, applied)

	b := testutil.GetBalance(t, db, c.ID)
	assert.Equal(t, int64(0), b.Available)
	assert.Equal(t, int64(5000), b.TotalPayouts)
	assert.Zero(t, testutil.CountNotifications(t, db, c.ID, domain.NotificationPayoutFailed))
}

func TestResubmit_LostResponseIsNeverDeferred(t *testing.T) {
	db := testutil.SetupTestDB(t)
	stack := testutil.NewStack(t, db, 0)
	ctx := context.Background()

	c := testutil.SeedCollaborator(t, db, "artist@test.com", "acct_artist")
	testutil.SeedEarnings(t, db, c.ID, 3000)

	stack.Provider.SetLoseResponses(true)
	p, err := stack.Payouts.RequestWithdrawal(ctx, payout.WithdrawalRequest{CollaboratorID: c.ID, Amount: 3000})
	require.NoError(t, err)
	require.Equal(t, 1, p.SubmitAttempts)

	stack.Provider.SetLoseResponses(false)
	stack.Provider.SetUnverified("acct_artist", true)

	p, err = stack.Payouts.Resubmit(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, p.RequiresOnboarding)
	assert.Equal(t, domain.PayoutStatusInTransit, p.Status)

	_, err = stack.Payouts.CancelPayout(ctx, c.ID, p.ID)
	require.Error(t, err, "a payout the provider holds cannot be cancelled locally")
	assert.Zero(t, testutil.CountNotifications(t, db, c.ID, domain.NotificationPayoutRequiresOnboarding))
}
