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

const splitColumns = `id, project_id, collaborator_id, basis_points, role, effective_date, locked_at, created_at`

type SplitRepository struct {
	db *sql.DB
}

func NewSplitRepository(db *sql.DB) *SplitRepository {
	return &SplitRepository{db: db}
}

func (r *SplitRepository) Create(ctx context.Context, tx *sql.Tx, s *domain.RoyaltySplit) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO royalty_splits (
			id, project_id, collaborator_id, basis_points, role, effective_date, locked_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.ProjectID, s.CollaboratorID, s.BasisPoints, s.Role, s.EffectiveDate, s.LockedAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *SplitRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RoyaltySplit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+splitColumns+` FROM royalty_splits WHERE id = $1`, id)
	s, err := scanSplit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return s, nil
}

// GetByProject returns the full split history of a project ordered by effective date.
func (r *SplitRepository) GetByProject(ctx context.Context, q Querier, projectID uuid.UUID) ([]domain.RoyaltySplit, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+splitColumns+` FROM royalty_splits
		WHERE project_id = $1 ORDER BY effective_date, created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByProject: %w", err)
	}
	defer rows.Close()

	var splits []domain.RoyaltySplit
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByProject: scan: %w", err)
		}
		splits = append(splits, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByProject: rows: %w", err)
	}
	return splits, nil
}

// Update changes an unlocked split in place. A locked split yields ErrSplitLocked.
func (r *SplitRepository) Update(ctx context.Context, tx *sql.Tx, id uuid.UUID, basisPoints int64, role string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE royalty_splits SET basis_points = $1, role = $2 WHERE id = $3 AND locked_at IS NULL`,
		basisPoints, role, id,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrSplitLocked)
	}
	return nil
}

// Lock stamps locked_at on the given splits; already locked rows keep their original stamp.
func (r *SplitRepository) Lock(ctx context.Context, tx *sql.Tx, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE royalty_splits SET locked_at = $1 WHERE id = ANY($2::uuid[]) AND locked_at IS NULL`,
		at, uuidArray(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("Lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Lock: rows affected: %w", err)
	}
	return n, nil
}

func scanSplit(s scanner) (*domain.RoyaltySplit, error) {
	var sp domain.RoyaltySplit
	err := s.Scan(
		&sp.ID, &sp.ProjectID, &sp.CollaboratorID, &sp.BasisPoints, &sp.Role,
		&sp.EffectiveDate, &sp.LockedAt, &sp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sp, nil
}
