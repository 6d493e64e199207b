package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
)

type WebhookProcessorConfig struct {
	Interval     time.Duration
	BatchSize    int
	MaxAttempts  int
	ClaimTimeout time.Duration
}

// WebhookProcessor drains the webhook inbox. Events survive restarts: a failed attempt
// puts the event back to pending until MaxAttempts is reached.
type WebhookProcessor struct {
	webhooks webhookInbox
	handler  eventHandler
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      WebhookProcessorConfig
}

func NewWebhookProcessor(
	webhooks webhookInbox,
	handler eventHandler,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg WebhookProcessorConfig,
) *WebhookProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Minute
	}
	return &WebhookProcessor{
		webhooks: webhooks,
		handler:  handler,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
	}
}

func (p *WebhookProcessor) Start(ctx context.Context) {
	p.logger.Info("webhook processor started", "interval", p.cfg.Interval)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("webhook processor stopped")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("failed to claim webhook events", "error", err)
			}
		}
	}
}

// ProcessOnce claims one batch of events and handles them. It returns how many events
// were claimed.
func (p *WebhookProcessor) ProcessOnce(ctx context.Context) (int, error) {
	events, err := p.webhooks.Claim(ctx, p.cfg.BatchSize, p.cfg.ClaimTimeout)
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error("failed to record webhook outcome",
				"webhook_event_id", event.ID,
				"error", err,
			)
		}
	}
	return len(events), nil
}

func (p *WebhookProcessor) processEvent(ctx context.Context, event domain.WebhookEvent) error {
	ctx = logging.WithLogger(ctx, p.logger)

	outcome, err := p.handler.Handle(ctx, event)
	if err == nil {
		status := domain.WebhookEventStatusProcessed
		if outcome == OutcomeIgnored {
			status = domain.WebhookEventStatusIgnored
		}
		p.metrics.WebhookProcessed(string(event.EventType), string(outcome))
		return p.webhooks.Complete(ctx, event.ID, status, nil)
	}

	msg := err.Error()
	permanent := errors.Is(err, domain.ErrInvalidRequest)
	if permanent || event.Attempts >= p.cfg.MaxAttempts {
		p.logger.Error("webhook event failed permanently",
			"webhook_event_id", event.ID,
			"event_type", event.EventType,
			"attempts", event.Attempts,
			"error", err,
		)
		p.metrics.WebhookProcessed(string(event.EventType), "failed")
		return p.webhooks.Complete(ctx, event.ID, domain.WebhookEventStatusFailed, &msg)
	}

	p.logger.Warn("webhook event will be retried",
		"webhook_event_id", event.ID,
		"event_type", event.EventType,
		"attempts", event.Attempts,
		"error", err,
	)
	p.metrics.WebhookProcessed(string(event.EventType), "retry")
	return p.webhooks.Complete(ctx, event.ID, domain.WebhookEventStatusPending, &msg)
}
