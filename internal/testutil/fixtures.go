package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

// SeedCollaborator inserts a collaborator with a verified payee account unless
// accountID is empty.
func SeedCollaborator(t *testing.T, db *sql.DB, email, accountID string) *domain.Collaborator {
	t.Helper()

	c := &domain.Collaborator{
		ID:          uuid.New(),
		Email:       email,
		Name:        email,
		PayeeStatus: domain.PayeeStatusNone,
		CreatedAt:   time.Now().UTC(),
	}
	if accountID != "" {
		c.PayeeAccountID = &accountID
		c.PayeeStatus = domain.PayeeStatusVerified
	}

	_, err := db.Exec(
		`INSERT INTO collaborators (id, email, name, payee_account_id, payee_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Email, c.Name, c.PayeeAccountID, c.PayeeStatus, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed collaborator %s: %v", email, err)
	}
	return c
}

// SeedEarnings sets a collaborator's cached balance as if amount had been posted and
// nothing paid out yet.
func SeedEarnings(t *testing.T, db *sql.DB, collaboratorID uuid.UUID, amount int64) {
	t.Helper()

	_, err := db.Exec(
		`UPDATE collaborators SET available_balance = $1, total_earnings = $1 WHERE id = $2`,
		amount, collaboratorID,
	)
	if err != nil {
		t.Fatalf("seed earnings %s: %v", collaboratorID, err)
	}
}

func SeedProject(t *testing.T, db *sql.DB, title string, ownerID *uuid.UUID) *domain.Project {
	t.Helper()

	p := &domain.Project{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO projects (id, owner_id, title, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.OwnerID, p.Title, p.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed project %s: %v", title, err)
	}
	return p
}

// SeedSplit inserts a split directly, bypassing timeline validation.
func SeedSplit(t *testing.T, db *sql.DB, projectID, collaboratorID uuid.UUID, basisPoints int64, effective time.Time) *domain.RoyaltySplit {
	t.Helper()

	s := &domain.RoyaltySplit{
		ID:             uuid.New(),
		ProjectID:      projectID,
		CollaboratorID: collaboratorID,
		BasisPoints:    basisPoints,
		Role:           "collaborator",
		EffectiveDate:  effective.UTC(),
		CreatedAt:      time.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO royalty_splits (id, project_id, collaborator_id, basis_points, role, effective_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.ProjectID, s.CollaboratorID, s.BasisPoints, s.Role, s.EffectiveDate, s.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed split %s/%s: %v", projectID, collaboratorID, err)
	}
	return s
}

func GetBalance(t *testing.T, db *sql.DB, collaboratorID uuid.UUID) domain.Balance {
	t.Helper()

	var b domain.Balance
	err := db.QueryRow(
		`SELECT available_balance, pending_balance, total_earnings, total_payouts
		 FROM collaborators WHERE id = $1`,
		collaboratorID,
	).Scan(&b.Available, &b.Pending, &b.TotalEarnings, &b.TotalPayouts)
	if err != nil {
		t.Fatalf("get balance %s: %v", collaboratorID, err)
	}
	return b
}

func GetPayoutStatus(t *testing.T, db *sql.DB, payoutID uuid.UUID) domain.PayoutStatus {
	t.Helper()

	var status domain.PayoutStatus
	if err := db.QueryRow(`SELECT status FROM payouts WHERE id = $1`, payoutID).Scan(&status); err != nil {
		t.Fatalf("get payout status %s: %v", payoutID, err)
	}
	return status
}

func CountPayouts(t *testing.T, db *sql.DB, collaboratorID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM payouts WHERE collaborator_id = $1`, collaboratorID).Scan(&count)
	if err != nil {
		t.Fatalf("count payouts for %s: %v", collaboratorID, err)
	}
	return count
}

func CountNotifications(t *testing.T, db *sql.DB, collaboratorID uuid.UUID, kind domain.NotificationKind) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM notifications WHERE collaborator_id = $1 AND kind = $2`,
		collaboratorID, kind,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count notifications for %s: %v", collaboratorID, err)
	}
	return count
}

func CountPaidEntries(t *testing.T, db *sql.DB, revenueEventID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE revenue_event_id = $1 AND is_paid`,
		revenueEventID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count paid entries for %s: %v", revenueEventID, err)
	}
	return count
}
