package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
)

const SignatureHeader = "X-Webhook-Signature"

type webhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookHandler verifies and stores provider callbacks. Processing happens later in
// the inbox poller, so the provider gets a fast 200 once the event is durable.
type WebhookHandler struct {
	webhooks webhookEventRepository
	secret   string
}

func NewWebhookHandler(webhooks webhookEventRepository, secret string) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, secret: secret}
}

func validateWebhook(p domain.ProviderWebhook) []FieldError {
	var errs []FieldError

	if p.EventID == "" {
		errs = append(errs, FieldError{Field: "event_id", Message: "required"})
	}

	if p.Type == "" {
		errs = append(errs, FieldError{Field: "type", Message: "required"})
	} else if !p.Type.IsValid() {
		errs = append(errs, FieldError{Field: "type", Message: "unsupported event type"})
	}

	if p.ObjectID == "" {
		errs = append(errs, FieldError{Field: "object_id", Message: "required"})
	}

	return errs
}

func (h *WebhookHandler) ReceiveProviderWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if !VerifySignature(body, r.Header.Get(SignatureHeader), h.secret) {
		log.Warn("webhook signature verification failed")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	var payload domain.ProviderWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := validateWebhook(payload); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	event := &domain.WebhookEvent{
		ID:              uuid.New(),
		ProviderEventID: payload.EventID,
		EventType:       payload.Type,
		ObjectID:        payload.ObjectID,
		Payload:         body,
		Status:          domain.WebhookEventStatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	if err := h.webhooks.Create(r.Context(), event); err != nil {
		if errors.Is(err, domain.ErrDuplicateWebhookEvent) {
			log.Info("duplicate webhook received", "provider_event_id", payload.EventID, "object_id", payload.ObjectID)
			RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
			return
		}
		log.Error("failed to store webhook event", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	log.Info("webhook event stored",
		"webhook_event_id", event.ID,
		"provider_event_id", payload.EventID,
		"object_id", payload.ObjectID,
		"event_type", event.EventType,
	)

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}

// Sign returns the hex HMAC-SHA256 of body. The mock provider signs with it too.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
