package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken         = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken         = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidInternalToken = &AppError{http.StatusUnauthorized, "INVALID_SERVICE_TOKEN", "Service token is missing or invalid"}
	ErrInvalidSignature     = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrInvalidRequest       = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed     = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound     = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrForbidden            = &AppError{http.StatusForbidden, "FORBIDDEN", "Only the project owner can manage splits"}
	ErrInternalError        = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount      = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidSource      = &AppError{http.StatusBadRequest, "INVALID_SOURCE", "Unknown revenue source"}
	ErrInvalidPercentage  = &AppError{http.StatusBadRequest, "INVALID_PERCENTAGE", "Percentage must be between 0 and 100 with at most two decimals"}
	ErrInvalidSplitConfig = &AppError{http.StatusUnprocessableEntity, "INVALID_SPLIT_CONFIGURATION", "Active split percentages would exceed 100%"}
	ErrSplitLocked        = &AppError{http.StatusConflict, "SPLIT_LOCKED", "Split is locked and can no longer change"}
	ErrNoActiveSplits     = &AppError{http.StatusUnprocessableEntity, "NO_ACTIVE_SPLITS", "Project has no active splits and no owner of record"}

	ErrInsufficientBalance  = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "Insufficient available balance"}
	ErrPayeeNotOnboarded    = &AppError{http.StatusUnprocessableEntity, "PAYEE_NOT_ONBOARDED", "Connect a payout account before withdrawing"}
	ErrPayoutTerminal       = &AppError{http.StatusConflict, "PAYOUT_TERMINAL", "Payout is already in a final state"}
	ErrPayoutNotCancellable = &AppError{http.StatusConflict, "PAYOUT_NOT_CANCELLABLE", "Payout was already submitted to the provider"}

	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrExternalRefConflict   = &AppError{http.StatusConflict, "EXTERNAL_REF_CONFLICT", "External reference already recorded with different revenue details"}
)
