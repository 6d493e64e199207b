package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

const revenueColumns = `id, project_id, amount, currency, source, external_ref,
	buyer_id, seller_id, occurred_at, created_at`

type RevenueRepository struct {
	db *sql.DB
}

func NewRevenueRepository(db *sql.DB) *RevenueRepository {
	return &RevenueRepository{db: db}
}

// Create inserts an immutable revenue event. A reused external_ref surfaces as
// ErrDuplicateIdempotencyKey.
func (r *RevenueRepository) Create(ctx context.Context, tx *sql.Tx, e *domain.RevenueEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO revenue_events (
			id, project_id, amount, currency, source, external_ref,
			buyer_id, seller_id, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ProjectID, e.Amount, e.Currency, e.Source, e.ExternalRef,
		e.BuyerID, e.SellerID, e.OccurredAt, e.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *RevenueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RevenueEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+revenueColumns+` FROM revenue_events WHERE id = $1`, id)
	e, err := scanRevenueEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return e, nil
}

func (r *RevenueRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.RevenueEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+revenueColumns+` FROM revenue_events WHERE external_ref = $1`, ref)
	e, err := scanRevenueEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByExternalRef: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByExternalRef: %w", err)
	}
	return e, nil
}

func scanRevenueEvent(s scanner) (*domain.RevenueEvent, error) {
	var (
		e      domain.RevenueEvent
		buyer  uuid.NullUUID
		seller uuid.NullUUID
	)
	err := s.Scan(
		&e.ID, &e.ProjectID, &e.Amount, &e.Currency, &e.Source, &e.ExternalRef,
		&buyer, &seller, &e.OccurredAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if buyer.Valid {
		e.BuyerID = &buyer.UUID
	}
	if seller.Valid {
		e.SellerID = &seller.UUID
	}
	return &e, nil
}
