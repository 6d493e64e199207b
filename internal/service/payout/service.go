package payout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
)

const (
	ActorSystem       = "system"
	ActorProvider     = "provider"
	ActorWebhook      = "webhook"
	ActorSweep        = "sweep"
	ActorCollaborator = "collaborator"
)

type payoutRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payout) error
	CreateItem(ctx context.Context, tx *sql.Tx, payoutID, ledgerEntryID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	GetByExternalRef(ctx context.Context, ref string) (*domain.Payout, error)
	ListByCollaborator(ctx context.Context, collaboratorID uuid.UUID, limit, offset int) ([]domain.Payout, int, error)
	Transition(ctx context.Context, tx *sql.Tx, id uuid.UUID, to domain.PayoutStatus, from []domain.PayoutStatus, upd repository.TransitionUpdate) (*domain.Payout, error)
	ClaimSubmission(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Payout, error)
	AttachExternalRef(ctx context.Context, id uuid.UUID, ref string, eta *time.Time) error
	SetRequiresOnboarding(ctx context.Context, tx *sql.Tx, id uuid.UUID, deferred bool) (bool, error)
	ListDeferred(ctx context.Context, collaboratorID uuid.UUID) ([]domain.Payout, error)
}

type collaboratorRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Collaborator, error)
	UpdatePayeeStatus(ctx context.Context, id uuid.UUID, status domain.PayeeStatus) error
}

type ledgerRepo interface {
	MarkPaidForPayout(ctx context.Context, tx *sql.Tx, payoutID uuid.UUID, at time.Time) (int64, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.PayoutEvent) error
	GetByPayoutID(ctx context.Context, payoutID uuid.UUID) ([]domain.PayoutEvent, error)
}

type notificationRepo interface {
	Create(ctx context.Context, tx *sql.Tx, n *domain.Notification) error
}

type balanceService interface {
	Reserve(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error)
	Settle(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error)
	Compensate(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error)
	Reverse(ctx context.Context, tx *sql.Tx, collaboratorID uuid.UUID, amount int64) (*domain.Balance, error)
}

type Settings struct {
	Currency       domain.Currency
	FeeBasisPoints int64
}

// Service drives payouts through their lifecycle. Every status change goes through
// Transition so the balance effect, audit event and notification commit together.
type Service struct {
	payouts       payoutRepo
	collaborators collaboratorRepo
	ledger        ledgerRepo
	events        eventRepo
	notifications notificationRepo
	balances      balanceService
	provider      Provider
	db            *sql.DB
	settings      Settings
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewService(
	payouts payoutRepo,
	collaborators collaboratorRepo,
	ledger ledgerRepo,
	events eventRepo,
	notifications notificationRepo,
	balances balanceService,
	provider Provider,
	db *sql.DB,
	settings Settings,
	m *metrics.Metrics,
) *Service {
	if settings.Currency == "" {
		settings.Currency = domain.CurrencyUSD
	}
	return &Service{
		payouts:       payouts,
		collaborators: collaborators,
		ledger:        ledger,
		events:        events,
		notifications: notifications,
		balances:      balances,
		provider:      provider,
		db:            db,
		settings:      settings,
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetPayout(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	p, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("GetPayout: %w", err)
	}
	return p, nil
}

// GetPayoutForCollaborator hides payouts belonging to someone else behind ErrNotFound.
func (s *Service) GetPayoutForCollaborator(ctx context.Context, payoutID, collaboratorID uuid.UUID) (*domain.Payout, error) {
	p, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("GetPayoutForCollaborator: %w", err)
	}
	if p.CollaboratorID != collaboratorID {
		return nil, fmt.Errorf("GetPayoutForCollaborator: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (s *Service) GetPayoutByExternalRef(ctx context.Context, ref string) (*domain.Payout, error) {
	p, err := s.payouts.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("GetPayoutByExternalRef: %w", err)
	}
	return p, nil
}

func (s *Service) ListPayouts(ctx context.Context, collaboratorID uuid.UUID, limit, offset int) ([]domain.Payout, int, error) {
	payouts, total, err := s.payouts.ListByCollaborator(ctx, collaboratorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListPayouts: %w", err)
	}
	return payouts, total, nil
}

func (s *Service) ListEvents(ctx context.Context, payoutID uuid.UUID) ([]domain.PayoutEvent, error) {
	events, err := s.events.GetByPayoutID(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	return events, nil
}

// FeeFor is the platform fee withheld from a transfer of amount.
func (s *Service) FeeFor(amount int64) int64 {
	if s.settings.FeeBasisPoints <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(s.settings.FeeBasisPoints)).
		Shift(-4).
		Floor().
		IntPart()
}

func (s *Service) writeEvent(ctx context.Context, tx *sql.Tx, payoutID uuid.UUID, eventType domain.PayoutEventType, actor string, payload json.RawMessage) error {
	event := &domain.PayoutEvent{
		ID:        uuid.New(),
		PayoutID:  payoutID,
		EventType: eventType,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: s.now(),
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, tx *sql.Tx, p *domain.Payout, kind domain.NotificationKind) error {
	payload, err := json.Marshal(notificationPayload{
		PayoutID:      p.ID,
		Kind:          p.Kind,
		Status:        p.Status,
		Amount:        domain.FormatMinor(p.Amount),
		NetAmount:     domain.FormatMinor(p.NetAmount()),
		Currency:      p.Currency,
		FailureReason: p.FailureReason,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	n := &domain.Notification{
		ID:             uuid.New(),
		CollaboratorID: p.CollaboratorID,
		Kind:           kind,
		Payload:        payload,
		CreatedAt:      s.now(),
	}
	if err := s.notifications.Create(ctx, tx, n); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

type notificationPayload struct {
	PayoutID      uuid.UUID           `json:"payout_id"`
	Kind          domain.PayoutKind   `json:"kind"`
	Status        domain.PayoutStatus `json:"status"`
	Amount        string              `json:"amount"`
	NetAmount     string              `json:"net_amount"`
	Currency      domain.Currency     `json:"currency"`
	FailureReason *string             `json:"failure_reason,omitempty"`
}

func strPtr(s string) *string {
	return &s
}
