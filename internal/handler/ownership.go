package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/josh-kwaku/royalty-settlement/internal/auth"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// collaboratorFromPath resolves the {id} path segment and requires it to be the caller.
// A mismatch is reported as not found so ids of other collaborators are not confirmed.
func collaboratorFromPath(r *http.Request) (uuid.UUID, *AppError) {
	callerID, ok := auth.CollaboratorIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingToken
	}

	collaboratorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}

	if collaboratorID != callerID {
		return uuid.Nil, ErrResourceNotFound
	}

	return collaboratorID, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}

func pagination(r *http.Request) (limit, offset int, fields []FieldError) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			fields = append(fields, FieldError{Field: "limit", Message: "must be between 1 and 100"})
		} else {
			limit = n
		}
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		} else {
			offset = n
		}
	}

	return limit, offset, fields
}
