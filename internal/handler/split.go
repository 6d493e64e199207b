package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/auth"
	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/service/splits"
)

type splitRegistry interface {
	GetProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, error)
	GetSplit(ctx context.Context, splitID uuid.UUID) (*domain.RoyaltySplit, error)
	ListSplits(ctx context.Context, projectID uuid.UUID) ([]domain.RoyaltySplit, error)
	SetSplit(ctx context.Context, req splits.SetSplitRequest) (*domain.RoyaltySplit, error)
	UpdateSplit(ctx context.Context, req splits.UpdateSplitRequest) (*domain.RoyaltySplit, error)
	LockSplits(ctx context.Context, projectID uuid.UUID) (int64, error)
}

// SplitHandler manages a project's royalty splits. Every route is restricted to the
// project's owner of record.
type SplitHandler struct {
	registry splitRegistry
	now      func() time.Time
}

func NewSplitHandler(registry splitRegistry) *SplitHandler {
	return &SplitHandler{registry: registry, now: func() time.Time { return time.Now().UTC() }}
}

type splitDTO struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	CollaboratorID uuid.UUID  `json:"collaborator_id"`
	Percentage     string     `json:"percentage"`
	Role           string     `json:"role"`
	EffectiveDate  time.Time  `json:"effective_date"`
	Active         bool       `json:"active"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toSplitDTO(s *domain.RoyaltySplit, active bool) splitDTO {
	return splitDTO{
		ID:             s.ID,
		ProjectID:      s.ProjectID,
		CollaboratorID: s.CollaboratorID,
		Percentage:     domain.FormatBasisPoints(s.BasisPoints),
		Role:           s.Role,
		EffectiveDate:  s.EffectiveDate,
		Active:         active,
		LockedAt:       s.LockedAt,
		CreatedAt:      s.CreatedAt,
	}
}

type createSplitRequest struct {
	CollaboratorID string     `json:"collaborator_id"`
	Percentage     string     `json:"percentage"`
	Role           string     `json:"role"`
	EffectiveDate  *time.Time `json:"effective_date"`
}

func (r createSplitRequest) Validate() []FieldError {
	var errs []FieldError

	if r.CollaboratorID == "" {
		errs = append(errs, FieldError{Field: "collaborator_id", Message: "required"})
	} else if _, err := uuid.Parse(r.CollaboratorID); err != nil {
		errs = append(errs, FieldError{Field: "collaborator_id", Message: "must be a valid UUID"})
	}

	if strings.TrimSpace(r.Percentage) == "" {
		errs = append(errs, FieldError{Field: "percentage", Message: "required"})
	}

	if strings.TrimSpace(r.Role) == "" {
		errs = append(errs, FieldError{Field: "role", Message: "required"})
	}

	return errs
}

type updateSplitRequest struct {
	Percentage string `json:"percentage"`
	Role       string `json:"role"`
}

func (r updateSplitRequest) Validate() []FieldError {
	if strings.TrimSpace(r.Percentage) == "" {
		return []FieldError{{Field: "percentage", Message: "required"}}
	}
	return nil
}

// ownedProject loads the project and requires the caller to own it. Projects without
// an owner of record cannot be managed over the API.
func (h *SplitHandler) ownedProject(r *http.Request, projectID uuid.UUID) (*domain.Project, *AppError) {
	callerID, ok := auth.CollaboratorIDFromContext(r.Context())
	if !ok {
		return nil, ErrMissingToken
	}

	project, err := h.registry.GetProject(r.Context(), projectID)
	if err != nil {
		return nil, appErrorFor(err)
	}

	if project.OwnerID == nil || *project.OwnerID != callerID {
		return nil, ErrForbidden
	}
	return project, nil
}

func (h *SplitHandler) inForce(s *domain.RoyaltySplit) bool {
	return s.BasisPoints > 0 && !s.EffectiveDate.After(h.now())
}

func (h *SplitHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, appErr := pathUUID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	if _, appErr := h.ownedProject(r, projectID); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	history, err := h.registry.ListSplits(r.Context(), projectID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list splits", "project_id", projectID, "error", err)
		RespondDomainError(w, err)
		return
	}

	active := make(map[uuid.UUID]bool)
	for _, s := range splits.ActiveAt(history, h.now()) {
		active[s.ID] = true
	}

	dtos := make([]splitDTO, len(history))
	for i := range history {
		dtos[i] = toSplitDTO(&history[i], active[history[i].ID])
	}

	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *SplitHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, appErr := pathUUID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	if _, appErr := h.ownedProject(r, projectID); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	setReq := splits.SetSplitRequest{
		ProjectID:      projectID,
		CollaboratorID: uuid.MustParse(req.CollaboratorID),
		Percentage:     req.Percentage,
		Role:           strings.TrimSpace(req.Role),
	}
	if req.EffectiveDate != nil {
		setReq.EffectiveDate = req.EffectiveDate.UTC()
	}

	split, err := h.registry.SetSplit(r.Context(), setReq)
	if err != nil {
		logging.FromContext(r.Context()).Warn("split rejected", "project_id", projectID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toSplitDTO(split, h.inForce(split)))
}

func (h *SplitHandler) Update(w http.ResponseWriter, r *http.Request) {
	splitID, appErr := pathUUID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	existing, err := h.registry.GetSplit(r.Context(), splitID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if _, appErr := h.ownedProject(r, existing.ProjectID); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	split, err := h.registry.UpdateSplit(r.Context(), splits.UpdateSplitRequest{
		SplitID:    splitID,
		Percentage: req.Percentage,
		Role:       strings.TrimSpace(req.Role),
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("split update rejected", "split_id", splitID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSplitDTO(split, h.inForce(split)))
}

func (h *SplitHandler) Lock(w http.ResponseWriter, r *http.Request) {
	projectID, appErr := pathUUID(r, "id")
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}
	if _, appErr := h.ownedProject(r, projectID); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	n, err := h.registry.LockSplits(r.Context(), projectID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to lock splits", "project_id", projectID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]int64{"locked": n})
}
