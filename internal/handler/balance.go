package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/service/payout"
)

type balanceService interface {
	GetBalance(ctx context.Context, collaboratorID uuid.UUID) (*domain.Balance, error)
}

type withdrawalService interface {
	RequestWithdrawal(ctx context.Context, req payout.WithdrawalRequest) (*domain.Payout, error)
	ListPayouts(ctx context.Context, collaboratorID uuid.UUID, limit, offset int) ([]domain.Payout, int, error)
}

// BalanceHandler serves the collaborator-scoped routes: balance, withdrawals and payout history.
type BalanceHandler struct {
	balances balanceService
	payouts  withdrawalService
	currency domain.Currency
}

func NewBalanceHandler(balances balanceService, payouts withdrawalService, currency domain.Currency) *BalanceHandler {
	return &BalanceHandler{balances: balances, payouts: payouts, currency: currency}
}

type balanceDTO struct {
	CollaboratorID   uuid.UUID `json:"collaborator_id"`
	Currency         string    `json:"currency"`
	AvailableBalance int64     `json:"available_balance"`
	PendingBalance   int64     `json:"pending_balance"`
	TotalEarnings    int64     `json:"total_earnings"`
	TotalPayouts     int64     `json:"total_payouts"`
	DisplayAvailable string    `json:"display_available"`
}

type withdrawalRequest struct {
	Amount int64 `json:"amount"`
}

func (r withdrawalRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	return errs
}

type payoutPage struct {
	Payouts []payoutDTO `json:"payouts"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
}

func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	collaboratorID, appErr := collaboratorFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	b, err := h.balances.GetBalance(r.Context(), collaboratorID)
	if err != nil {
		logging.FromContext(r.Context()).Error("balance lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{
		CollaboratorID:   collaboratorID,
		Currency:         string(h.currency),
		AvailableBalance: b.Available,
		PendingBalance:   b.Pending,
		TotalEarnings:    b.TotalEarnings,
		TotalPayouts:     b.TotalPayouts,
		DisplayAvailable: domain.FormatMinor(b.Available),
	})
}

func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	collaboratorID, appErr := collaboratorFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.payouts.RequestWithdrawal(r.Context(), payout.WithdrawalRequest{
		CollaboratorID: collaboratorID,
		Amount:         req.Amount,
	})
	if err != nil {
		log.Warn("withdrawal rejected", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payouts/%s", p.ID))
	RespondSuccess(w, http.StatusAccepted, toPayoutDTO(p))
}

func (h *BalanceHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	collaboratorID, appErr := collaboratorFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset, fields := pagination(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	payouts, total, err := h.payouts.ListPayouts(r.Context(), collaboratorID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list payouts", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, payoutPage{
		Payouts: toPayoutDTOs(payouts),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}
