package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
)

type ProviderClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// ProviderClient talks to the payment provider over HTTP+JSON. Outbound calls share one
// rate limiter. 4xx answers (other than 408 and 429) are definitive rejections and wrap
// domain.ErrExternalProvider; anything else is an unknown outcome.
type ProviderClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
}

func NewProviderClient(cfg ProviderClientConfig, m *metrics.Metrics) *ProviderClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &ProviderClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		metrics: m,
	}
}

type accountResponse struct {
	ID                 string `json:"id"`
	Verified           bool   `json:"verified"`
	RequiresOnboarding bool   `json:"requires_onboarding"`
}

type transferPayload struct {
	Destination string            `json:"destination"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type payoutPayload struct {
	Account  string            `json:"account"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type objectResponse struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
}

func (c *ProviderClient) VerifyAccount(ctx context.Context, accountID string) (*payout.AccountStatus, error) {
	var resp accountResponse
	if err := c.do(ctx, "verify_account", http.MethodGet, "/v1/accounts/"+url.PathEscape(accountID), "", nil, &resp); err != nil {
		return nil, fmt.Errorf("VerifyAccount: %w", err)
	}
	return &payout.AccountStatus{
		Verified:           resp.Verified,
		RequiresOnboarding: resp.RequiresOnboarding,
	}, nil
}

func (c *ProviderClient) CreateTransfer(ctx context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	payload := transferPayload{
		Destination: req.Destination,
		Amount:      req.Amount,
		Currency:    string(req.Currency),
		Metadata:    req.Metadata,
	}
	var resp objectResponse
	if err := c.do(ctx, "create_transfer", http.MethodPost, "/v1/transfers", req.IdempotencyKey, payload, &resp); err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("CreateTransfer: empty transfer id in response")
	}
	return &payout.TransferResult{ExternalID: resp.ID}, nil
}

func (c *ProviderClient) CreatePayout(ctx context.Context, req payout.PayoutRequest) (*payout.PayoutResult, error) {
	payload := payoutPayload{
		Account:  req.Account,
		Amount:   req.Amount,
		Currency: string(req.Currency),
		Metadata: req.Metadata,
	}
	var resp objectResponse
	if err := c.do(ctx, "create_payout", http.MethodPost, "/v1/payouts", req.IdempotencyKey, payload, &resp); err != nil {
		return nil, fmt.Errorf("CreatePayout: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("CreatePayout: empty payout id in response")
	}
	return &payout.PayoutResult{ExternalID: resp.ID, EstimatedArrival: resp.EstimatedArrival}, nil
}

func (c *ProviderClient) GetTransfer(ctx context.Context, id string) (*payout.ObjectStatus, error) {
	var resp objectResponse
	if err := c.do(ctx, "get_transfer", http.MethodGet, "/v1/transfers/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, fmt.Errorf("GetTransfer: %w", err)
	}
	return &payout.ObjectStatus{Status: resp.Status, FailureReason: resp.FailureReason}, nil
}

func (c *ProviderClient) GetPayout(ctx context.Context, id string) (*payout.ObjectStatus, error) {
	var resp objectResponse
	if err := c.do(ctx, "get_payout", http.MethodGet, "/v1/payouts/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, fmt.Errorf("GetPayout: %w", err)
	}
	return &payout.ObjectStatus{Status: resp.Status, FailureReason: resp.FailureReason}, nil
}

func (c *ProviderClient) do(ctx context.Context, op, method, path, idempotencyKey string, payload, out any) error {
	log := logging.FromContext(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ProviderCall(op, "transport_error", time.Since(start))
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	log.Info("provider response received",
		"operation", op,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if definitive(resp.StatusCode) {
			c.metrics.ProviderCall(op, "rejected", duration)
			return fmt.Errorf("status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(respBody), domain.ErrExternalProvider)
		}
		c.metrics.ProviderCall(op, "error", duration)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	c.metrics.ProviderCall(op, "ok", duration)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func definitive(status int) bool {
	return status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout &&
		status != http.StatusTooManyRequests
}

var _ payout.Provider = (*ProviderClient)(nil)
