package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

type webhookBacklog interface {
	CountByStatus(ctx context.Context, status domain.WebhookEventStatus) (int, error)
}

type HealthHandler struct {
	db       *sql.DB
	webhooks webhookBacklog
}

func NewHealthHandler(db *sql.DB, webhooks webhookBacklog) *HealthHandler {
	return &HealthHandler{db: db, webhooks: webhooks}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness fails only when Postgres is unreachable. The webhook backlog is reported
// for operators but never takes the instance out of rotation.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	body := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbStatus,
		},
	}

	if dbStatus == "ok" && h.webhooks != nil {
		backlog := map[string]int{}
		for _, status := range []domain.WebhookEventStatus{domain.WebhookEventStatusPending, domain.WebhookEventStatusFailed} {
			n, err := h.webhooks.CountByStatus(r.Context(), status)
			if err != nil {
				slog.Warn("readiness check: webhook backlog unavailable", "error", err)
				continue
			}
			backlog[string(status)] = n
		}
		body["webhook_inbox"] = backlog
	}

	RespondJSON(w, httpStatus, body)
}
