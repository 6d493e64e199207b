package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/service/revenue"
)

const maxImportBatch = 500

type revenueRecorder interface {
	RecordRevenue(ctx context.Context, req revenue.RecordRequest) (*revenue.Result, error)
	RecordSaleRevenue(ctx context.Context, req revenue.SaleRequest) (*revenue.Result, error)
}

// RevenueHandler is the internal ingestion surface used by the distribution importer
// and the marketplace checkout.
type RevenueHandler struct {
	recorder revenueRecorder
}

func NewRevenueHandler(recorder revenueRecorder) *RevenueHandler {
	return &RevenueHandler{recorder: recorder}
}

type revenueLine struct {
	ProjectID   string     `json:"project_id"`
	Amount      int64      `json:"amount"`
	Source      string     `json:"source"`
	OccurredAt  *time.Time `json:"occurred_at"`
	ExternalRef *string    `json:"external_ref"`
}

func (l revenueLine) validate(prefix string) []FieldError {
	var errs []FieldError

	if l.ProjectID == "" {
		errs = append(errs, FieldError{Field: prefix + "project_id", Message: "required"})
	} else if _, err := uuid.Parse(l.ProjectID); err != nil {
		errs = append(errs, FieldError{Field: prefix + "project_id", Message: "must be a valid UUID"})
	}

	if l.Amount <= 0 {
		errs = append(errs, FieldError{Field: prefix + "amount", Message: "must be greater than 0"})
	}

	if l.Source == "" {
		errs = append(errs, FieldError{Field: prefix + "source", Message: "required"})
	} else if !domain.RevenueSource(l.Source).IsValid() {
		errs = append(errs, FieldError{Field: prefix + "source", Message: "unknown revenue source"})
	}

	return errs
}

type importRequest struct {
	Events []revenueLine `json:"events"`
}

func (r importRequest) Validate() []FieldError {
	if len(r.Events) == 0 {
		return []FieldError{{Field: "events", Message: "at least one event is required"}}
	}
	if len(r.Events) > maxImportBatch {
		return []FieldError{{Field: "events", Message: "at most 500 events per request"}}
	}

	var errs []FieldError
	for i, line := range r.Events {
		errs = append(errs, line.validate("events["+strconv.Itoa(i)+"].")...)
	}
	return errs
}

type saleRequest struct {
	ProjectID   string     `json:"project_id"`
	Amount      int64      `json:"amount"`
	BuyerID     string     `json:"buyer_id"`
	SellerID    string     `json:"seller_id"`
	OccurredAt  *time.Time `json:"occurred_at"`
	ExternalRef *string    `json:"external_ref"`
}

func (r saleRequest) Validate() []FieldError {
	var errs []FieldError

	ids := []struct{ field, value string }{
		{"project_id", r.ProjectID},
		{"buyer_id", r.BuyerID},
		{"seller_id", r.SellerID},
	}
	for _, id := range ids {
		if id.value == "" {
			errs = append(errs, FieldError{Field: id.field, Message: "required"})
		} else if _, err := uuid.Parse(id.value); err != nil {
			errs = append(errs, FieldError{Field: id.field, Message: "must be a valid UUID"})
		}
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	return errs
}

type ledgerEntryDTO struct {
	ID             uuid.UUID `json:"id"`
	CollaboratorID uuid.UUID `json:"collaborator_id"`
	Amount         int64     `json:"amount"`
	Percentage     string    `json:"percentage"`
	IsPaid         bool      `json:"is_paid"`
}

type revenueResultDTO struct {
	EventID  uuid.UUID        `json:"event_id"`
	Amount   int64            `json:"amount"`
	Source   string           `json:"source"`
	Replayed bool             `json:"replayed"`
	Entries  []ledgerEntryDTO `json:"entries"`
	Payouts  []payoutDTO      `json:"payouts,omitempty"`
}

func toRevenueResultDTO(res *revenue.Result) revenueResultDTO {
	dto := revenueResultDTO{
		EventID:  res.Event.ID,
		Amount:   res.Event.Amount,
		Source:   string(res.Event.Source),
		Replayed: res.Replayed,
		Entries:  make([]ledgerEntryDTO, len(res.Entries)),
		Payouts:  toPayoutDTOs(res.Payouts),
	}
	for i, e := range res.Entries {
		dto.Entries[i] = ledgerEntryDTO{
			ID:             e.ID,
			CollaboratorID: e.CollaboratorID,
			Amount:         e.Amount,
			Percentage:     domain.FormatBasisPoints(e.BasisPoints),
			IsPaid:         e.IsPaid,
		}
	}
	return dto
}

type importItemResult struct {
	Index  int               `json:"index"`
	Result *revenueResultDTO `json:"result,omitempty"`
	Error  *APIError         `json:"error,omitempty"`
}

type importSummary struct {
	Recorded int                `json:"recorded"`
	Replayed int                `json:"replayed"`
	Failed   int                `json:"failed"`
	Items    []importItemResult `json:"items"`
}

// Import records a batch of revenue lines. Lines are independent: one failing line
// does not roll back the others, and re-sending a batch with external refs is safe.
func (h *RevenueHandler) Import(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	summary := importSummary{Items: make([]importItemResult, len(req.Events))}
	for i, line := range req.Events {
		summary.Items[i].Index = i

		recordReq := revenue.RecordRequest{
			ProjectID:   uuid.MustParse(line.ProjectID),
			Amount:      line.Amount,
			Source:      domain.RevenueSource(line.Source),
			ExternalRef: line.ExternalRef,
		}
		if line.OccurredAt != nil {
			recordReq.OccurredAt = line.OccurredAt.UTC()
		}

		res, err := h.recorder.RecordRevenue(r.Context(), recordReq)
		if err != nil {
			log.Warn("revenue line rejected", "index", i, "project_id", line.ProjectID, "error", err)
			appErr := appErrorFor(err)
			summary.Items[i].Error = &APIError{Code: appErr.Code, Message: appErr.Message}
			summary.Failed++
			continue
		}

		dto := toRevenueResultDTO(res)
		summary.Items[i].Result = &dto
		if res.Replayed {
			summary.Replayed++
		} else {
			summary.Recorded++
		}
	}

	log.Info("revenue batch imported",
		"lines", len(req.Events),
		"recorded", summary.Recorded,
		"replayed", summary.Replayed,
		"failed", summary.Failed,
	)

	status := http.StatusOK
	if summary.Recorded > 0 {
		status = http.StatusCreated
	}
	RespondSuccess(w, status, summary)
}

func (h *RevenueHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	saleReq := revenue.SaleRequest{
		ProjectID:   uuid.MustParse(req.ProjectID),
		Amount:      req.Amount,
		BuyerID:     uuid.MustParse(req.BuyerID),
		SellerID:    uuid.MustParse(req.SellerID),
		ExternalRef: req.ExternalRef,
	}
	if req.OccurredAt != nil {
		saleReq.OccurredAt = req.OccurredAt.UTC()
	}

	res, err := h.recorder.RecordSaleRevenue(r.Context(), saleReq)
	if err != nil {
		logging.FromContext(r.Context()).Warn("sale revenue rejected", "project_id", req.ProjectID, "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	RespondSuccess(w, status, toRevenueResultDTO(res))
}
