package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/royalty-settlement/internal/auth"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

func asCaller(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(auth.ContextWithCollaboratorID(req.Context(), id))
}

func decodeResponse(t *testing.T, body io.Reader) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, rr.Body.String())
	return envelope.Data
}

func TestAppErrorFor(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrNotFound, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{domain.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
		{domain.ErrInvalidSource, http.StatusBadRequest, "INVALID_SOURCE"},
		{domain.ErrInvalidPercentage, http.StatusBadRequest, "INVALID_PERCENTAGE"},
		{domain.ErrInvalidSplitConfiguration, http.StatusUnprocessableEntity, "INVALID_SPLIT_CONFIGURATION"},
		{domain.ErrSplitLocked, http.StatusConflict, "SPLIT_LOCKED"},
		{domain.ErrNoActiveSplits, http.StatusUnprocessableEntity, "NO_ACTIVE_SPLITS"},
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE"},
		{domain.ErrPayeeNotOnboarded, http.StatusUnprocessableEntity, "PAYEE_NOT_ONBOARDED"},
		{domain.ErrPayoutNotCancellable, http.StatusConflict, "PAYOUT_NOT_CANCELLABLE"},
		{domain.ErrPayoutTerminal, http.StatusConflict, "PAYOUT_TERMINAL"},
		{domain.ErrVersionConflict, http.StatusConflict, "VERSION_CONFLICT"},
		{domain.ErrExternalRefConflict, http.StatusConflict, "EXTERNAL_REF_CONFLICT"},
		{domain.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.wantCode, func(t *testing.T) {
			appErr := appErrorFor(fmt.Errorf("Op: %w", tc.err))
			assert.Equal(t, tc.wantStatus, appErr.Status)
			assert.Equal(t, tc.wantCode, appErr.Code)
		})
	}
}

func TestCollaboratorFromPath(t *testing.T) {
	caller := uuid.New()

	tests := []struct {
		name    string
		pathID  string
		authed  bool
		wantErr *AppError
	}{
		{name: "own id", pathID: caller.String(), authed: true},
		{name: "someone else", pathID: uuid.NewString(), authed: true, wantErr: ErrResourceNotFound},
		{name: "malformed id", pathID: "nope", authed: true, wantErr: ErrResourceNotFound},
		{name: "no token", pathID: caller.String(), wantErr: ErrMissingToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.SetPathValue("id", tc.pathID)
			if tc.authed {
				req = asCaller(req, caller)
			}

			id, appErr := collaboratorFromPath(req)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, appErr)
				return
			}
			require.Nil(t, appErr)
			assert.Equal(t, caller, id)
		})
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantFields int
	}{
		{"", defaultPageSize, 0, 0},
		{"?limit=5&offset=10", 5, 10, 0},
		{"?limit=0", defaultPageSize, 0, 1},
		{"?limit=101&offset=-1", defaultPageSize, 0, 2},
		{"?offset=abc", defaultPageSize, 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/payouts"+tc.query, nil)
			limit, offset, fields := pagination(req)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantOffset, offset)
			assert.Len(t, fields, tc.wantFields)
		})
	}
}
