package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

const webhookEventColumns = `id, provider_event_id, event_type, object_id, payload, status,
	attempts, last_attempt, last_error, created_at`

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Create stores a received event in the inbox. A provider event id seen before
// yields ErrDuplicateWebhookEvent.
func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (
			id, provider_event_id, event_type, object_id, payload, status, attempts, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.ProviderEventID, event.EventType, event.ObjectID, jsonParam(event.Payload),
		event.Status, event.Attempts, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateWebhookEvent)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Claim marks up to limit pending events as processing and returns them. Events left in
// processing longer than staleAfter (a crashed worker) are claimed again.
func (r *WebhookEventRepository) Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.WebhookEvent, error) {
	// FOR UPDATE SKIP LOCKED prevents multiple processors from claiming the same event
	rows, err := r.db.QueryContext(ctx,
		`UPDATE webhook_events SET status = $1, attempts = attempts + 1, last_attempt = now()
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status = $2 OR (status = $1 AND last_attempt < $3)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+webhookEventColumns,
		domain.WebhookEventStatusProcessing, domain.WebhookEventStatusPending,
		time.Now().UTC().Add(-staleAfter), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("Claim: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("Claim: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Claim: rows: %w", err)
	}
	return events, nil
}

// Complete records the outcome of a processing attempt. lastErr is stored for
// failed and retried events.
func (r *WebhookEventRepository) Complete(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, lastErr *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = $1, last_error = $2 WHERE id = $3`,
		status, lastErr, id,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Complete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Complete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WebhookEventRepository) CountByStatus(ctx context.Context, status domain.WebhookEventStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM webhook_events WHERE status = $1`, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountByStatus: %w", err)
	}
	return n, nil
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var (
		e       domain.WebhookEvent
		payload []byte
	)
	err := s.Scan(
		&e.ID, &e.ProviderEventID, &e.EventType, &e.ObjectID, &payload,
		&e.Status, &e.Attempts, &e.LastAttempt, &e.LastError, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
