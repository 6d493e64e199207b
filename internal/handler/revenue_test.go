package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/service/revenue"
)

type mockRecorder struct {
	recorded []revenue.RecordRequest
	sale     *revenue.SaleRequest
	failRef  string
	replay   bool
}

func (m *mockRecorder) RecordRevenue(_ context.Context, req revenue.RecordRequest) (*revenue.Result, error) {
	m.recorded = append(m.recorded, req)
	if req.ExternalRef != nil && *req.ExternalRef == m.failRef {
		return nil, fmt.Errorf("RecordRevenue: %w", domain.ErrNoActiveSplits)
	}
	return m.result(req.ProjectID, req.Amount, req.Source), nil
}

func (m *mockRecorder) RecordSaleRevenue(_ context.Context, req revenue.SaleRequest) (*revenue.Result, error) {
	m.sale = &req
	res := m.result(req.ProjectID, req.Amount, domain.SourceMarketplaceSale)
	res.Payouts = []domain.Payout{{
		ID:             uuid.New(),
		CollaboratorID: req.SellerID,
		Amount:         req.Amount,
		FeeAmount:      req.Amount / 20,
		Currency:       domain.CurrencyUSD,
		Kind:           domain.PayoutKindTransferOnSale,
		Status:         domain.PayoutStatusInTransit,
	}}
	return res, nil
}

func (m *mockRecorder) result(projectID uuid.UUID, amount int64, source domain.RevenueSource) *revenue.Result {
	event := &domain.RevenueEvent{ID: uuid.New(), ProjectID: projectID, Amount: amount, Source: source}
	return &revenue.Result{
		Event: event,
		Entries: []domain.LedgerEntry{
			{ID: uuid.New(), RevenueEventID: event.ID, CollaboratorID: uuid.New(), Amount: amount, BasisPoints: 10000},
		},
		Replayed: m.replay,
	}
}

func TestRevenueHandler_ImportReportsPerLineOutcome(t *testing.T) {
	rec := &mockRecorder{failRef: "dsp-2"}
	h := NewRevenueHandler(rec)
	project := uuid.NewString()

	body := `{"events":[
		{"project_id":"` + project + `","amount":10000,"source":"streaming","occurred_at":"2026-02-01T00:00:00Z","external_ref":"dsp-1"},
		{"project_id":"` + project + `","amount":500,"source":"sync","external_ref":"dsp-2"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/revenue", strings.NewReader(body))
	rr := httptest.NewRecorder()

	h.Import(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	summary := decodeData[importSummary](t, rr)
	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Items, 2)
	require.NotNil(t, summary.Items[0].Result)
	assert.Equal(t, int64(10000), summary.Items[0].Result.Amount)
	require.NotNil(t, summary.Items[1].Error)
	assert.Equal(t, "NO_ACTIVE_SPLITS", summary.Items[1].Error.Code)

	require.Len(t, rec.recorded, 2)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), rec.recorded[0].OccurredAt)
	assert.True(t, rec.recorded[1].OccurredAt.IsZero())
}

func TestRevenueHandler_ImportValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty batch", `{"events":[]}`},
		{"bad project", `{"events":[{"project_id":"x","amount":1,"source":"streaming"}]}`},
		{"zero amount", `{"events":[{"project_id":"` + uuid.NewString() + `","amount":0,"source":"streaming"}]}`},
		{"unknown source", `{"events":[{"project_id":"` + uuid.NewString() + `","amount":1,"source":"radio"}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &mockRecorder{}
			h := NewRevenueHandler(rec)

			rr := httptest.NewRecorder()
			h.Import(rr, httptest.NewRequest(http.MethodPost, "/internal/v1/revenue", strings.NewReader(tc.body)))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, rec.recorded)
		})
	}
}

func TestRevenueHandler_ImportReplayedBatch(t *testing.T) {
	rec := &mockRecorder{replay: true}
	h := NewRevenueHandler(rec)

	body := `{"events":[{"project_id":"` + uuid.NewString() + `","amount":100,"source":"licensing","external_ref":"lic-9"}]}`
	rr := httptest.NewRecorder()
	h.Import(rr, httptest.NewRequest(http.MethodPost, "/internal/v1/revenue", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code)
	summary := decodeData[importSummary](t, rr)
	assert.Equal(t, 1, summary.Replayed)
	assert.Equal(t, 0, summary.Recorded)
}

func TestRevenueHandler_RecordSale(t *testing.T) {
	rec := &mockRecorder{}
	h := NewRevenueHandler(rec)
	seller := uuid.New()

	body := `{"project_id":"` + uuid.NewString() + `","amount":8000,"buyer_id":"` + uuid.NewString() + `","seller_id":"` + seller.String() + `"}`
	rr := httptest.NewRecorder()
	h.RecordSale(rr, httptest.NewRequest(http.MethodPost, "/internal/v1/sales", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rr.Code)
	got := decodeData[revenueResultDTO](t, rr)
	assert.Equal(t, "marketplace_sale", got.Source)
	require.Len(t, got.Payouts, 1)
	assert.Equal(t, int64(400), got.Payouts[0].FeeAmount)
	assert.Equal(t, int64(7600), got.Payouts[0].NetAmount)
	require.NotNil(t, rec.sale)
	assert.Equal(t, seller, rec.sale.SellerID)
}

func TestRevenueHandler_RecordSaleRequiresParties(t *testing.T) {
	rec := &mockRecorder{}
	h := NewRevenueHandler(rec)

	body := `{"project_id":"` + uuid.NewString() + `","amount":8000,"buyer_id":"` + uuid.NewString() + `"}`
	rr := httptest.NewRecorder()
	h.RecordSale(rr, httptest.NewRequest(http.MethodPost, "/internal/v1/sales", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeResponse(t, rr.Body)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
	assert.Nil(t, rec.sale)
}
