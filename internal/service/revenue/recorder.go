package revenue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
)

type revenueRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.RevenueEvent) error
	GetByExternalRef(ctx context.Context, ref string) (*domain.RevenueEvent, error)
}

type projectRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

type poster interface {
	Post(ctx context.Context, tx *sql.Tx, event *domain.RevenueEvent) ([]domain.LedgerEntry, error)
}

type entryReader interface {
	GetByRevenueEvent(ctx context.Context, q repository.Querier, revenueEventID uuid.UUID) ([]domain.LedgerEntry, error)
}

// saleTransferrer pays out a marketplace sale's entries immediately.
type saleTransferrer interface {
	TransferOnSale(ctx context.Context, event *domain.RevenueEvent, entries []domain.LedgerEntry) ([]domain.Payout, error)
}

type Recorder struct {
	events    revenueRepo
	projects  projectRepo
	poster    poster
	entries   entryReader
	transfers saleTransferrer
	db        *sql.DB
	currency  domain.Currency
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRecorder(
	events revenueRepo,
	projects projectRepo,
	p poster,
	entries entryReader,
	transfers saleTransferrer,
	db *sql.DB,
	currency domain.Currency,
	m *metrics.Metrics,
) *Recorder {
	return &Recorder{
		events:    events,
		projects:  projects,
		poster:    p,
		entries:   entries,
		transfers: transfers,
		db:        db,
		currency:  currency,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type RecordRequest struct {
	ProjectID   uuid.UUID
	Amount      int64
	Source      domain.RevenueSource
	OccurredAt  time.Time
	ExternalRef *string
	BuyerID     *uuid.UUID
	SellerID    *uuid.UUID
}

type SaleRequest struct {
	ProjectID   uuid.UUID
	Amount      int64
	BuyerID     uuid.UUID
	SellerID    uuid.UUID
	OccurredAt  time.Time
	ExternalRef *string
}

// Result is a recorded event with the ledger entries it produced. Replayed is set when
// the external reference had already been ingested.
type Result struct {
	Event    *domain.RevenueEvent
	Entries  []domain.LedgerEntry
	Payouts  []domain.Payout
	Replayed bool
}

func (r *Recorder) RecordRevenue(ctx context.Context, req RecordRequest) (*Result, error) {
	log := logging.FromContext(ctx)

	if err := validate(req); err != nil {
		return nil, fmt.Errorf("RecordRevenue: %w", err)
	}

	if req.ExternalRef != nil {
		existing, err := r.replay(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("RecordRevenue: %w", err)
		}
		if existing != nil {
			log.Info("revenue replay", "revenue_event_id", existing.Event.ID, "external_ref", *req.ExternalRef)
			return existing, nil
		}
	}

	if _, err := r.projects.GetByID(ctx, req.ProjectID); err != nil {
		return nil, fmt.Errorf("RecordRevenue: project: %w", err)
	}

	result, err := r.record(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) && req.ExternalRef != nil {
			existing, replayErr := r.replay(ctx, req)
			if replayErr != nil {
				return nil, fmt.Errorf("RecordRevenue: %w", replayErr)
			}
			if existing != nil {
				log.Info("revenue replay (race)", "revenue_event_id", existing.Event.ID, "external_ref", *req.ExternalRef)
				return existing, nil
			}
		}
		return nil, fmt.Errorf("RecordRevenue: %w", err)
	}

	r.metrics.RevenueRecorded(string(req.Source), req.Amount, len(result.Entries))
	log.Info("revenue recorded",
		"revenue_event_id", result.Event.ID,
		"project_id", req.ProjectID,
		"source", req.Source,
		"amount", req.Amount,
	)
	return result, nil
}

// RecordSaleRevenue records a marketplace sale and then requests transfer-on-sale payouts
// for its entries. The revenue stays recorded if the transfers cannot be started; the
// sweep and deferred-release paths pick them up later.
func (r *Recorder) RecordSaleRevenue(ctx context.Context, req SaleRequest) (*Result, error) {
	if req.BuyerID == uuid.Nil || req.SellerID == uuid.Nil {
		return nil, fmt.Errorf("RecordSaleRevenue: buyer and seller required: %w", domain.ErrInvalidRequest)
	}

	result, err := r.RecordRevenue(ctx, RecordRequest{
		ProjectID:   req.ProjectID,
		Amount:      req.Amount,
		Source:      domain.SourceMarketplaceSale,
		OccurredAt:  req.OccurredAt,
		ExternalRef: req.ExternalRef,
		BuyerID:     &req.BuyerID,
		SellerID:    &req.SellerID,
	})
	if err != nil {
		return nil, fmt.Errorf("RecordSaleRevenue: %w", err)
	}

	if r.transfers == nil || result.Replayed {
		return result, nil
	}

	payouts, err := r.transfers.TransferOnSale(ctx, result.Event, result.Entries)
	if err != nil {
		logging.FromContext(ctx).Error("transfer on sale failed",
			"revenue_event_id", result.Event.ID,
			"error", err,
		)
		return result, nil
	}
	result.Payouts = payouts
	return result, nil
}

func (r *Recorder) record(ctx context.Context, req RecordRequest) (*Result, error) {
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = r.now()
	}

	event := &domain.RevenueEvent{
		ID:          uuid.New(),
		ProjectID:   req.ProjectID,
		Amount:      req.Amount,
		Currency:    r.currency,
		Source:      req.Source,
		ExternalRef: req.ExternalRef,
		BuyerID:     req.BuyerID,
		SellerID:    req.SellerID,
		OccurredAt:  occurredAt.UTC(),
		CreatedAt:   r.now(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("record: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.events.Create(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	entries, err := r.poster.Post(ctx, tx, event)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("record: commit: %w", err)
	}

	return &Result{Event: event, Entries: entries}, nil
}

// replay returns the event already recorded under req's external reference, or nil if
// there is none. A stored event that disagrees with req is ErrExternalRefConflict.
func (r *Recorder) replay(ctx context.Context, req RecordRequest) (*Result, error) {
	existing, err := r.events.GetByExternalRef(ctx, *req.ExternalRef)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay: %w", err)
	}
	if !sameRevenue(existing, req) {
		return nil, fmt.Errorf("replay: %s: %w", *req.ExternalRef, domain.ErrExternalRefConflict)
	}

	entries, err := r.entries.GetByRevenueEvent(ctx, r.db, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return &Result{Event: existing, Entries: entries, Replayed: true}, nil
}

func sameRevenue(e *domain.RevenueEvent, req RecordRequest) bool {
	return e.ProjectID == req.ProjectID &&
		e.Amount == req.Amount &&
		e.Source == req.Source &&
		sameID(e.BuyerID, req.BuyerID) &&
		sameID(e.SellerID, req.SellerID)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func validate(req RecordRequest) error {
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if !req.Source.IsValid() {
		return domain.ErrInvalidSource
	}
	if req.ProjectID == uuid.Nil {
		return fmt.Errorf("project id required: %w", domain.ErrInvalidRequest)
	}
	if req.ExternalRef != nil && *req.ExternalRef == "" {
		return fmt.Errorf("external ref must not be empty: %w", domain.ErrInvalidRequest)
	}
	return nil
}
