package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/handler"
)

const deliveryAttempts = 3

// webhookNotifier posts signed events to the settlement service, retrying a few times
// the way a real provider would.
type webhookNotifier struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

func newWebhookNotifier(url, secret string, logger *slog.Logger) *webhookNotifier {
	return &webhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

func (n *webhookNotifier) Send(ctx context.Context, event domain.ProviderWebhook) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to encode webhook", "error", err)
		return
	}

	go func() {
		for attempt := 1; attempt <= deliveryAttempts; attempt++ {
			err := n.deliver(context.WithoutCancel(ctx), body)
			if err == nil {
				n.logger.Info("webhook delivered", "event_id", event.EventID, "type", event.Type, "object_id", event.ObjectID)
				return
			}
			n.logger.Warn("webhook delivery failed", "event_id", event.EventID, "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}()
}

func (n *webhookNotifier) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.SignatureHeader, handler.Sign(body, n.secret))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
