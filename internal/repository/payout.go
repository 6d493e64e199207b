package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

const payoutColumns = `id, collaborator_id, amount, fee_amount, currency, kind, status,
	requires_onboarding, revenue_event_id, external_reference_id, failure_reason,
	estimated_arrival, submit_attempts, last_submitted_at, requested_at, updated_at, completed_at`

type PayoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// TransitionUpdate carries the columns written alongside a status change. Nil fields
// keep their stored value.
type TransitionUpdate struct {
	ExternalReferenceID *string
	FailureReason       *string
	EstimatedArrival    *time.Time
	CompletedAt         *time.Time
	// RequireUnsubmitted additionally requires that no submission to the provider is in
	// flight or acknowledged.
	RequireUnsubmitted bool
}

func (r *PayoutRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payout) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payouts (
			id, collaborator_id, amount, fee_amount, currency, kind, status,
			requires_onboarding, revenue_event_id, external_reference_id, failure_reason,
			estimated_arrival, submit_attempts, last_submitted_at, requested_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.CollaboratorID, p.Amount, p.FeeAmount, p.Currency, p.Kind, p.Status,
		p.RequiresOnboarding, p.RevenueEventID, p.ExternalReferenceID, p.FailureReason,
		p.EstimatedArrival, p.SubmitAttempts, p.LastSubmittedAt, p.RequestedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// CreateItem links a ledger entry to the payout settling it. An entry belongs to at most
// one payout.
func (r *PayoutRepository) CreateItem(ctx context.Context, tx *sql.Tx, payoutID, ledgerEntryID uuid.UUID) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payout_items (payout_id, ledger_entry_id) VALUES ($1, $2)`,
		payoutID, ledgerEntryID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("CreateItem: entry already settled by another payout: %w", domain.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("CreateItem: %w", err)
	}
	return nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PayoutRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.Payout, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE external_reference_id = $1`, ref)
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByExternalRef: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByExternalRef: %w", err)
	}
	return p, nil
}

func (r *PayoutRepository) ListByCollaborator(ctx context.Context, collaboratorID uuid.UUID, limit, offset int) ([]domain.Payout, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payouts WHERE collaborator_id = $1`, collaboratorID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByCollaborator: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		WHERE collaborator_id = $1 ORDER BY requested_at DESC, id LIMIT $2 OFFSET $3`,
		collaboratorID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByCollaborator: %w", err)
	}
	defer rows.Close()

	payouts, err := collectPayouts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByCollaborator: %w", err)
	}
	return payouts, total, nil
}

// Transition moves a payout to status `to` only if it is currently in one of `from`.
// When no row matches it returns ErrInvalidTransition and the caller decides whether
// that is a benign replay.
func (r *PayoutRepository) Transition(ctx context.Context, tx *sql.Tx, id uuid.UUID, to domain.PayoutStatus, from []domain.PayoutStatus, upd TransitionUpdate) (*domain.Payout, error) {
	query := `UPDATE payouts SET
			status = $1,
			external_reference_id = COALESCE($2, external_reference_id),
			failure_reason = COALESCE($3, failure_reason),
			estimated_arrival = COALESCE($4, estimated_arrival),
			completed_at = COALESCE($5, completed_at),
			updated_at = now()
		WHERE id = $6 AND status = ANY($7)`
	if upd.RequireUnsubmitted {
		query += ` AND external_reference_id IS NULL AND (requires_onboarding OR submit_attempts = 0)`
	}
	query += ` RETURNING ` + payoutColumns

	row := tx.QueryRowContext(ctx, query,
		to, upd.ExternalReferenceID, upd.FailureReason, upd.EstimatedArrival, upd.CompletedAt,
		id, stringArray(from),
	)
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Transition: %w", domain.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("Transition: %w", err)
	}
	return p, nil
}

// ClaimSubmission records a submission attempt. It only succeeds for a pending payout
// that is neither deferred for onboarding nor already acknowledged, which keeps a
// concurrent cancel from racing an in-flight provider call.
func (r *PayoutRepository) ClaimSubmission(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Payout, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE payouts SET submit_attempts = submit_attempts + 1, last_submitted_at = $1, updated_at = now()
		WHERE id = $2 AND status = $3 AND NOT requires_onboarding AND external_reference_id IS NULL
		RETURNING `+payoutColumns,
		at, id, domain.PayoutStatusPending,
	)
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ClaimSubmission: %w", domain.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("ClaimSubmission: %w", err)
	}
	return p, nil
}

// AttachExternalRef records the provider id on a payout whose status already moved on
// (a webhook overtook the submission response).
func (r *PayoutRepository) AttachExternalRef(ctx context.Context, id uuid.UUID, ref string, eta *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET
			external_reference_id = COALESCE(external_reference_id, $1),
			estimated_arrival = COALESCE($2, estimated_arrival),
			updated_at = now()
		WHERE id = $3`,
		ref, eta, id,
	)
	if err != nil {
		return fmt.Errorf("AttachExternalRef: %w", err)
	}
	return nil
}

// SetRequiresOnboarding flags or clears deferral on an unacknowledged pending payout.
// It reports whether a row changed.
func (r *PayoutRepository) SetRequiresOnboarding(ctx context.Context, tx *sql.Tx, id uuid.UUID, deferred bool) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payouts SET requires_onboarding = $1, updated_at = now()
		WHERE id = $2 AND status = $3 AND external_reference_id IS NULL AND requires_onboarding <> $1`,
		deferred, id, domain.PayoutStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("SetRequiresOnboarding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SetRequiresOnboarding: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PayoutRepository) ListDeferred(ctx context.Context, collaboratorID uuid.UUID) ([]domain.Payout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		WHERE collaborator_id = $1 AND status = $2 AND requires_onboarding
		ORDER BY requested_at, id`,
		collaboratorID, domain.PayoutStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("ListDeferred: %w", err)
	}
	defer rows.Close()

	payouts, err := collectPayouts(rows)
	if err != nil {
		return nil, fmt.Errorf("ListDeferred: %w", err)
	}
	return payouts, nil
}

// ListStalePending returns unacknowledged, non-deferred pending payouts whose last
// submission (or creation) is older than before.
func (r *PayoutRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Payout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		WHERE status = $1 AND NOT requires_onboarding
		AND COALESCE(last_submitted_at, requested_at) < $2
		ORDER BY requested_at, id LIMIT $3`,
		domain.PayoutStatusPending, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStalePending: %w", err)
	}
	defer rows.Close()

	payouts, err := collectPayouts(rows)
	if err != nil {
		return nil, fmt.Errorf("ListStalePending: %w", err)
	}
	return payouts, nil
}

func (r *PayoutRepository) ListStaleInTransit(ctx context.Context, before time.Time, limit int) ([]domain.Payout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at, id LIMIT $3`,
		domain.PayoutStatusInTransit, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStaleInTransit: %w", err)
	}
	defer rows.Close()

	payouts, err := collectPayouts(rows)
	if err != nil {
		return nil, fmt.Errorf("ListStaleInTransit: %w", err)
	}
	return payouts, nil
}

// SumByStatus totals payout amounts per status for one collaborator.
func (r *PayoutRepository) SumByStatus(ctx context.Context, collaboratorID uuid.UUID) (map[domain.PayoutStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COALESCE(SUM(amount), 0) FROM payouts WHERE collaborator_id = $1 GROUP BY status`,
		collaboratorID,
	)
	if err != nil {
		return nil, fmt.Errorf("SumByStatus: %w", err)
	}
	defer rows.Close()

	sums := make(map[domain.PayoutStatus]int64)
	for rows.Next() {
		var (
			status domain.PayoutStatus
			sum    int64
		)
		if err := rows.Scan(&status, &sum); err != nil {
			return nil, fmt.Errorf("SumByStatus: scan: %w", err)
		}
		sums[status] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SumByStatus: rows: %w", err)
	}
	return sums, nil
}

func collectPayouts(rows *sql.Rows) ([]domain.Payout, error) {
	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return payouts, nil
}

func scanPayout(s scanner) (*domain.Payout, error) {
	var (
		p            domain.Payout
		revenueEvent uuid.NullUUID
	)
	err := s.Scan(
		&p.ID, &p.CollaboratorID, &p.Amount, &p.FeeAmount, &p.Currency, &p.Kind, &p.Status,
		&p.RequiresOnboarding, &revenueEvent, &p.ExternalReferenceID, &p.FailureReason,
		&p.EstimatedArrival, &p.SubmitAttempts, &p.LastSubmittedAt, &p.RequestedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if revenueEvent.Valid {
		p.RevenueEventID = &revenueEvent.UUID
	}
	return &p, nil
}
