package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

const ledgerColumns = `id, revenue_event_id, collaborator_id, project_id, split_id,
	amount, basis_points, is_paid, paid_at, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// MarkPosted claims the posting guard for a revenue event. It returns false when the
// event was already posted.
func (r *LedgerRepository) MarkPosted(ctx context.Context, tx *sql.Tx, revenueEventID uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_postings (revenue_event_id, posted_at) VALUES ($1, $2)
		ON CONFLICT (revenue_event_id) DO NOTHING`,
		revenueEventID, at,
	)
	if err != nil {
		return false, fmt.Errorf("MarkPosted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkPosted: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, revenue_event_id, collaborator_id, project_id, split_id,
			amount, basis_points, is_paid, paid_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.RevenueEventID, entry.CollaboratorID, entry.ProjectID, entry.SplitID,
		entry.Amount, entry.BasisPoints, entry.IsPaid, entry.PaidAt, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetByRevenueEvent(ctx context.Context, q Querier, revenueEventID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE revenue_event_id = $1 ORDER BY created_at, id`,
		revenueEventID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByRevenueEvent: %w", err)
	}
	defer rows.Close()

	entries, err := collectLedgerEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("GetByRevenueEvent: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) GetByCollaborator(ctx context.Context, collaboratorID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE collaborator_id = $1`, collaboratorID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByCollaborator: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE collaborator_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		collaboratorID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByCollaborator: %w", err)
	}
	defer rows.Close()

	entries, err := collectLedgerEntries(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByCollaborator: %w", err)
	}
	return entries, total, nil
}

// MarkPaidForPayout flips is_paid on the entries a payout settles. Entries already
// paid are left alone, so a replayed completion changes nothing.
func (r *LedgerRepository) MarkPaidForPayout(ctx context.Context, tx *sql.Tx, payoutID uuid.UUID, at time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET is_paid = true, paid_at = $1
		WHERE is_paid = false
		AND id IN (SELECT ledger_entry_id FROM payout_items WHERE payout_id = $2)`,
		at, payoutID,
	)
	if err != nil {
		return 0, fmt.Errorf("MarkPaidForPayout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("MarkPaidForPayout: rows affected: %w", err)
	}
	return n, nil
}

func (r *LedgerRepository) SumByCollaborator(ctx context.Context, collaboratorID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE collaborator_id = $1`, collaboratorID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumByCollaborator: %w", err)
	}
	return sum, nil
}

func collectLedgerEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var (
		e     domain.LedgerEntry
		split uuid.NullUUID
	)
	err := s.Scan(
		&e.ID, &e.RevenueEventID, &e.CollaboratorID, &e.ProjectID, &split,
		&e.Amount, &e.BasisPoints, &e.IsPaid, &e.PaidAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if split.Valid {
		e.SplitID = &split.UUID
	}
	return &e, nil
}
