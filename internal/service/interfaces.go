package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
)

type payoutReconciler interface {
	GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	GetPayoutByExternalRef(ctx context.Context, ref string) (*domain.Payout, error)
	ApplyProviderStatus(ctx context.Context, payoutID uuid.UUID, reported domain.PayoutStatus, externalRef string, reason *string, actor string, payload json.RawMessage) (*domain.Payout, bool, error)
	ReleaseDeferred(ctx context.Context, collaboratorID uuid.UUID) (int, error)
}

type payeeRepository interface {
	GetByPayeeAccountID(ctx context.Context, accountID string) (*domain.Collaborator, error)
	UpdatePayeeStatus(ctx context.Context, id uuid.UUID, status domain.PayeeStatus) error
}

type accountVerifier interface {
	VerifyAccount(ctx context.Context, accountID string) (*payout.AccountStatus, error)
}

type webhookInbox interface {
	Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.WebhookEvent, error)
	Complete(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, lastErr *string) error
}

type eventHandler interface {
	Handle(ctx context.Context, event domain.WebhookEvent) (Outcome, error)
}

type stalePayouts interface {
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Payout, error)
	ListStaleInTransit(ctx context.Context, before time.Time, limit int) ([]domain.Payout, error)
}

type payoutSweeper interface {
	Resubmit(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
	RefreshFromProvider(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
}

type expiredCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}
