package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*ProviderClient, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m := metrics.New()
	return NewProviderClient(ProviderClientConfig{
		BaseURL: srv.URL,
		APIKey:  "sk_test",
		Timeout: time.Second,
		RPS:     1000,
		Burst:   10,
	}, m), m
}

func TestProviderClient_VerifyAccount(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/accounts/acct_123", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                  "acct_123",
			"verified":            false,
			"requires_onboarding": true,
		})
	})

	status, err := client.VerifyAccount(context.Background(), "acct_123")
	require.NoError(t, err)
	assert.False(t, status.Ready())
	assert.True(t, status.RequiresOnboarding)
}

func TestProviderClient_CreateTransfer(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "payout-1", r.Header.Get("Idempotency-Key"))

		var body transferPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acct_9", body.Destination)
		assert.Equal(t, int64(950), body.Amount)
		assert.Equal(t, "USD", body.Currency)
		assert.Equal(t, "payout-1", body.Metadata[payout.MetadataPayoutID])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tr_1", "status": "pending"})
	})

	res, err := client.CreateTransfer(context.Background(), payout.TransferRequest{
		IdempotencyKey: "payout-1",
		Destination:    "acct_9",
		Amount:         950,
		Currency:       domain.CurrencyUSD,
		Metadata:       map[string]string{payout.MetadataPayoutID: "payout-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tr_1", res.ExternalID)
}

func TestProviderClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		definitive bool
	}{
		{name: "unprocessable", status: http.StatusUnprocessableEntity, definitive: true},
		{name: "not found", status: http.StatusNotFound, definitive: true},
		{name: "rate limited", status: http.StatusTooManyRequests, definitive: false},
		{name: "server error", status: http.StatusServiceUnavailable, definitive: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tc.status)
			})

			_, err := client.CreatePayout(context.Background(), payout.PayoutRequest{
				IdempotencyKey: "p",
				Account:        "acct",
				Amount:         100,
				Currency:       domain.CurrencyUSD,
			})
			require.Error(t, err)
			assert.Equal(t, tc.definitive, errors.Is(err, domain.ErrExternalProvider))
		})
	}
}

func TestProviderClient_GetPayout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payouts/po_7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             "po_7",
			"status":         "failed",
			"failure_reason": "account_closed",
		})
	})

	obj, err := client.GetPayout(context.Background(), "po_7")
	require.NoError(t, err)
	assert.Equal(t, payout.ProviderStatusFailed, obj.Status)
	require.NotNil(t, obj.FailureReason)
	assert.Equal(t, "account_closed", *obj.FailureReason)
}

func TestProviderClient_TransportErrorIsAmbiguous(t *testing.T) {
	client := NewProviderClient(ProviderClientConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)

	_, err := client.GetTransfer(context.Background(), "tr_1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrExternalProvider))
}
