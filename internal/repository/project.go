package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

const projectColumns = `id, owner_id, title, created_at`

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, title, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.OwnerID, p.Title, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProjectRow(row, "GetByID")
}

// GetForUpdate serialises split writers on a project.
func (r *ProjectRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id)
	return scanProjectRow(row, "GetForUpdate")
}

// GetForShare lets concurrent postings proceed together while blocking split writers.
func (r *ProjectRepository) GetForShare(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR SHARE`, id)
	return scanProjectRow(row, "GetForShare")
}

func scanProjectRow(row *sql.Row, op string) (*domain.Project, error) {
	var (
		p     domain.Project
		owner uuid.NullUUID
	)
	if err := row.Scan(&p.ID, &owner, &p.Title, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if owner.Valid {
		p.OwnerID = &owner.UUID
	}
	return &p, nil
}
