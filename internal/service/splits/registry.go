package splits

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/repository"
)

const defaultRole = "collaborator"

type projectRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Project, error)
}

type collaboratorRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Collaborator, error)
}

type splitRepo interface {
	Create(ctx context.Context, tx *sql.Tx, s *domain.RoyaltySplit) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RoyaltySplit, error)
	GetByProject(ctx context.Context, q repository.Querier, projectID uuid.UUID) ([]domain.RoyaltySplit, error)
	Update(ctx context.Context, tx *sql.Tx, id uuid.UUID, basisPoints int64, role string) error
	Lock(ctx context.Context, tx *sql.Tx, ids []uuid.UUID, at time.Time) (int64, error)
}

type Registry struct {
	projects      projectRepo
	collaborators collaboratorRepo
	splits        splitRepo
	db            *sql.DB
	now           func() time.Time
}

func NewRegistry(projects projectRepo, collaborators collaboratorRepo, splits splitRepo, db *sql.DB) *Registry {
	return &Registry{
		projects:      projects,
		collaborators: collaborators,
		splits:        splits,
		db:            db,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type SetSplitRequest struct {
	ProjectID      uuid.UUID
	CollaboratorID uuid.UUID
	Percentage     string
	Role           string
	// EffectiveDate defaults to now.
	EffectiveDate time.Time
}

type UpdateSplitRequest struct {
	SplitID    uuid.UUID
	Percentage string
	Role       string
}

func (r *Registry) GetProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, error) {
	p, err := r.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("GetProject: %w", err)
	}
	return p, nil
}

func (r *Registry) GetSplit(ctx context.Context, splitID uuid.UUID) (*domain.RoyaltySplit, error) {
	s, err := r.splits.GetByID(ctx, splitID)
	if err != nil {
		return nil, fmt.Errorf("GetSplit: %w", err)
	}
	return s, nil
}

// GetActiveSplits returns the split in force for each collaborator at the given instant.
func (r *Registry) GetActiveSplits(ctx context.Context, projectID uuid.UUID, at time.Time) ([]domain.RoyaltySplit, error) {
	history, err := r.splits.GetByProject(ctx, r.db, projectID)
	if err != nil {
		return nil, fmt.Errorf("GetActiveSplits: %w", err)
	}
	return ActiveAt(history, at), nil
}

// ActiveSplitsTx is GetActiveSplits inside the caller's transaction.
func (r *Registry) ActiveSplitsTx(ctx context.Context, tx *sql.Tx, projectID uuid.UUID, at time.Time) ([]domain.RoyaltySplit, error) {
	history, err := r.splits.GetByProject(ctx, tx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ActiveSplitsTx: %w", err)
	}
	return ActiveAt(history, at), nil
}

// ListSplits returns the whole dated history of a project.
func (r *Registry) ListSplits(ctx context.Context, projectID uuid.UUID) ([]domain.RoyaltySplit, error) {
	if _, err := r.projects.GetByID(ctx, projectID); err != nil {
		return nil, fmt.Errorf("ListSplits: %w", err)
	}
	history, err := r.splits.GetByProject(ctx, r.db, projectID)
	if err != nil {
		return nil, fmt.Errorf("ListSplits: %w", err)
	}
	return history, nil
}

func (r *Registry) SetSplit(ctx context.Context, req SetSplitRequest) (*domain.RoyaltySplit, error) {
	log := logging.FromContext(ctx)

	bp, err := domain.ParsePercentage(req.Percentage)
	if err != nil {
		return nil, fmt.Errorf("SetSplit: %w", err)
	}
	if _, err := r.collaborators.GetByID(ctx, req.CollaboratorID); err != nil {
		return nil, fmt.Errorf("SetSplit: collaborator: %w", err)
	}

	now := r.now()
	effective := req.EffectiveDate
	if effective.IsZero() {
		effective = now
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = defaultRole
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("SetSplit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.projects.GetForUpdate(ctx, tx, req.ProjectID); err != nil {
		return nil, fmt.Errorf("SetSplit: %w", err)
	}

	history, err := r.splits.GetByProject(ctx, tx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("SetSplit: %w", err)
	}

	s := &domain.RoyaltySplit{
		ID:             uuid.New(),
		ProjectID:      req.ProjectID,
		CollaboratorID: req.CollaboratorID,
		BasisPoints:    bp,
		Role:           role,
		EffectiveDate:  effective.UTC(),
		CreatedAt:      now,
	}

	if err := ValidateTimeline(append(history, *s), s.EffectiveDate); err != nil {
		return nil, fmt.Errorf("SetSplit: %w", err)
	}

	if err := r.splits.Create(ctx, tx, s); err != nil {
		return nil, fmt.Errorf("SetSplit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("SetSplit: commit: %w", err)
	}

	log.Info("royalty split set",
		"split_id", s.ID,
		"project_id", s.ProjectID,
		"collaborator_id", s.CollaboratorID,
		"percentage", domain.FormatBasisPoints(s.BasisPoints),
		"effective_date", s.EffectiveDate,
	)
	return s, nil
}

// UpdateSplit edits an unlocked split in place. Locked splits are immutable; callers
// add a new dated split instead.
func (r *Registry) UpdateSplit(ctx context.Context, req UpdateSplitRequest) (*domain.RoyaltySplit, error) {
	bp, err := domain.ParsePercentage(req.Percentage)
	if err != nil {
		return nil, fmt.Errorf("UpdateSplit: %w", err)
	}

	current, err := r.splits.GetByID(ctx, req.SplitID)
	if err != nil {
		return nil, fmt.Errorf("UpdateSplit: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("UpdateSplit: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.projects.GetForUpdate(ctx, tx, current.ProjectID); err != nil {
		return nil, fmt.Errorf("UpdateSplit: %w", err)
	}

	history, err := r.splits.GetByProject(ctx, tx, current.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("UpdateSplit: %w", err)
	}

	idx := -1
	for i := range history {
		if history[i].ID == req.SplitID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("UpdateSplit: %w", domain.ErrNotFound)
	}
	if history[idx].IsLocked() {
		return nil, fmt.Errorf("UpdateSplit: %w", domain.ErrSplitLocked)
	}

	updated := history[idx]
	updated.BasisPoints = bp
	if role := strings.TrimSpace(req.Role); role != "" {
		updated.Role = role
	}
	history[idx] = updated

	if err := ValidateTimeline(history, updated.EffectiveDate); err != nil {
		return nil, fmt.Errorf("UpdateSplit: %w", err)
	}

	if err := r.splits.Update(ctx, tx, updated.ID, updated.BasisPoints, updated.Role); err != nil {
		return nil, fmt.Errorf("UpdateSplit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("UpdateSplit: commit: %w", err)
	}

	logging.FromContext(ctx).Info("royalty split updated",
		"split_id", updated.ID,
		"percentage", domain.FormatBasisPoints(updated.BasisPoints),
	)
	return &updated, nil
}

// LockSplits freezes every split currently active on the project and returns how many
// were newly locked.
func (r *Registry) LockSplits(ctx context.Context, projectID uuid.UUID) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("LockSplits: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.projects.GetForUpdate(ctx, tx, projectID); err != nil {
		return 0, fmt.Errorf("LockSplits: %w", err)
	}

	history, err := r.splits.GetByProject(ctx, tx, projectID)
	if err != nil {
		return 0, fmt.Errorf("LockSplits: %w", err)
	}

	now := r.now()
	active := ActiveAt(history, now)
	ids := make([]uuid.UUID, len(active))
	for i, s := range active {
		ids[i] = s.ID
	}

	n, err := r.splits.Lock(ctx, tx, ids, now)
	if err != nil {
		return 0, fmt.Errorf("LockSplits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("LockSplits: commit: %w", err)
	}

	logging.FromContext(ctx).Info("royalty splits locked", "project_id", projectID, "locked", n)
	return n, nil
}

// LockApplied locks the splits a posting used, inside the posting transaction.
func (r *Registry) LockApplied(ctx context.Context, tx *sql.Tx, splitIDs []uuid.UUID, at time.Time) error {
	if _, err := r.splits.Lock(ctx, tx, splitIDs, at); err != nil {
		return fmt.Errorf("LockApplied: %w", err)
	}
	return nil
}

// ActiveAt resolves a split history to the split in force per collaborator at instant
// at: the latest effective date not after at, ties going to the latest created. Zero
// percent splits are dropped. The result is ordered by creation time.
func ActiveAt(history []domain.RoyaltySplit, at time.Time) []domain.RoyaltySplit {
	latest := make(map[uuid.UUID]domain.RoyaltySplit)
	for _, s := range history {
		if s.EffectiveDate.After(at) {
			continue
		}
		cur, ok := latest[s.CollaboratorID]
		if !ok || supersedes(s, cur) {
			latest[s.CollaboratorID] = s
		}
	}

	active := make([]domain.RoyaltySplit, 0, len(latest))
	for _, s := range latest {
		if s.BasisPoints > 0 {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].ID.String() < active[j].ID.String()
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active
}

func supersedes(a, b domain.RoyaltySplit) bool {
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		return a.EffectiveDate.After(b.EffectiveDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// ValidateTimeline checks that the active percentages sum to at most 100% at from and
// at every later instant where the active set changes.
func ValidateTimeline(history []domain.RoyaltySplit, from time.Time) error {
	instants := []time.Time{from}
	for _, s := range history {
		if s.EffectiveDate.After(from) {
			instants = append(instants, s.EffectiveDate)
		}
	}

	for _, t := range instants {
		var total int64
		for _, s := range ActiveAt(history, t) {
			total += s.BasisPoints
		}
		if total > domain.MaxBasisPoints {
			return fmt.Errorf("ValidateTimeline: %s%% active at %s: %w",
				domain.FormatBasisPoints(total), t.Format(time.RFC3339), domain.ErrInvalidSplitConfiguration)
		}
	}
	return nil
}
