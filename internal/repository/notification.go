package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, tx *sql.Tx, n *domain.Notification) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO notifications (id, collaborator_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.CollaboratorID, n.Kind, jsonParam(n.Payload), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetByCollaborator(ctx context.Context, collaboratorID uuid.UUID, limit int) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, collaborator_id, kind, payload, created_at
		FROM notifications WHERE collaborator_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		collaboratorID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByCollaborator: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n       domain.Notification
			payload []byte
		)
		if err := rows.Scan(&n.ID, &n.CollaboratorID, &n.Kind, &payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetByCollaborator: scan: %w", err)
		}
		n.Payload = payload
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByCollaborator: rows: %w", err)
	}
	return out, nil
}
