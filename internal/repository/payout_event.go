package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

type PayoutEventRepository struct {
	db *sql.DB
}

func NewPayoutEventRepository(db *sql.DB) *PayoutEventRepository {
	return &PayoutEventRepository{db: db}
}

func (r *PayoutEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.PayoutEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payout_events (id, payout_id, event_type, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.PayoutID, event.EventType, event.Actor, jsonParam(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PayoutEventRepository) GetByPayoutID(ctx context.Context, payoutID uuid.UUID) ([]domain.PayoutEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payout_id, event_type, actor, payload, created_at
		FROM payout_events WHERE payout_id = $1 ORDER BY created_at, id`,
		payoutID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByPayoutID: %w", err)
	}
	defer rows.Close()

	var events []domain.PayoutEvent
	for rows.Next() {
		var (
			e       domain.PayoutEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.PayoutID, &e.EventType, &e.Actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetByPayoutID: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByPayoutID: rows: %w", err)
	}
	return events, nil
}
