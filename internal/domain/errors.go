package domain

import "errors"

var (
	ErrNotFound                  = errors.New("not found")
	ErrInvalidAmount             = errors.New("amount must be greater than zero")
	ErrInvalidSource             = errors.New("invalid revenue source")
	ErrInvalidPercentage         = errors.New("percentage must be between 0 and 100 with at most two decimal places")
	ErrInvalidSplitConfiguration = errors.New("active split percentages exceed 100%")
	ErrSplitLocked               = errors.New("split is locked")
	ErrNoActiveSplits            = errors.New("project has no active splits and no owner")
	ErrInsufficientBalance       = errors.New("insufficient available balance")
	ErrPayeeNotOnboarded         = errors.New("payee account not connected")
	ErrExternalProvider          = errors.New("payment provider rejected the request")
	ErrDuplicateWebhookEvent     = errors.New("webhook event already received")
	ErrInvalidTransition         = errors.New("invalid payout status transition")
	ErrPayoutTerminal            = errors.New("payout already in terminal state")
	ErrPayoutNotCancellable      = errors.New("payout can no longer be cancelled")
	ErrBalanceInvariant          = errors.New("balance would become negative")
	ErrVersionConflict           = errors.New("optimistic lock conflict")
	ErrInvalidRequest            = errors.New("invalid request")
	ErrDuplicateIdempotencyKey   = errors.New("duplicate idempotency key")
	ErrExternalRefConflict       = errors.New("external reference already used for different revenue")
)
