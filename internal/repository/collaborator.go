package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

const collaboratorColumns = `id, email, name, payee_account_id, payee_status,
	available_balance, pending_balance, total_earnings, total_payouts, version, created_at`

type CollaboratorRepository struct {
	db *sql.DB
}

func NewCollaboratorRepository(db *sql.DB) *CollaboratorRepository {
	return &CollaboratorRepository{db: db}
}

func (r *CollaboratorRepository) Create(ctx context.Context, c *domain.Collaborator) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collaborators (
			id, email, name, payee_account_id, payee_status,
			available_balance, pending_balance, total_earnings, total_payouts, version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Email, c.Name, c.PayeeAccountID, c.PayeeStatus,
		c.AvailableBalance, c.PendingBalance, c.TotalEarnings, c.TotalPayouts, c.Version, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *CollaboratorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Collaborator, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collaboratorColumns+` FROM collaborators WHERE id = $1`, id,
	)
	c, err := scanCollaborator(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return c, nil
}

func (r *CollaboratorRepository) GetByPayeeAccountID(ctx context.Context, accountID string) (*domain.Collaborator, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collaboratorColumns+` FROM collaborators WHERE payee_account_id = $1`, accountID,
	)
	c, err := scanCollaborator(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPayeeAccountID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPayeeAccountID: %w", err)
	}
	return c, nil
}

func (r *CollaboratorRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Collaborator, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+collaboratorColumns+` FROM collaborators WHERE id = $1 FOR UPDATE`, id,
	)
	c, err := scanCollaborator(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return c, nil
}

// UpdateBalances writes the cached aggregate. The row must be at newVersion-1.
func (r *CollaboratorRepository) UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, b domain.Balance, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE collaborators
		SET available_balance = $1, pending_balance = $2, total_earnings = $3, total_payouts = $4, version = $5
		WHERE id = $6 AND version = $7`,
		b.Available, b.Pending, b.TotalEarnings, b.TotalPayouts, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalances: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalances: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *CollaboratorRepository) UpdatePayeeStatus(ctx context.Context, id uuid.UUID, status domain.PayeeStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE collaborators SET payee_status = $1 WHERE id = $2`, status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdatePayeeStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdatePayeeStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdatePayeeStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *CollaboratorRepository) List(ctx context.Context, limit, offset int) ([]domain.Collaborator, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+collaboratorColumns+` FROM collaborators ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []domain.Collaborator
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return out, nil
}

func scanCollaborator(s scanner) (*domain.Collaborator, error) {
	var c domain.Collaborator
	err := s.Scan(
		&c.ID, &c.Email, &c.Name, &c.PayeeAccountID, &c.PayeeStatus,
		&c.AvailableBalance, &c.PendingBalance, &c.TotalEarnings, &c.TotalPayouts,
		&c.Version, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
