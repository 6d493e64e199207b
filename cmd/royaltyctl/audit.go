package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/service/balance"
)

// errDrift makes the process exit non-zero so the command can gate a cron job.
var errDrift = errors.New("balance drift detected")

const auditPageSize = 200

type auditOutput struct {
	CollaboratorID   string `json:"collaborator_id"`
	Drift            bool   `json:"drift"`
	CachedAvailable  int64  `json:"cached_available"`
	DerivedAvailable int64  `json:"derived_available"`
	CachedEarnings   int64  `json:"cached_total_earnings"`
	DerivedEarnings  int64  `json:"derived_total_earnings"`
	CachedPending    int64  `json:"cached_pending"`
	DerivedPending   int64  `json:"derived_pending"`
	CachedPayouts    int64  `json:"cached_total_payouts"`
	DerivedPayouts   int64  `json:"derived_total_payouts"`
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "audit [collaborator-id]",
		Short: "Compare cached balances against the ledger and payout history",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass a collaborator id or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("a collaborator id is required unless --all is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			aggregator, collaborators, err := ctx.balances(cmd.Context())
			if err != nil {
				return err
			}

			var ids []uuid.UUID
			if all {
				for offset := 0; ; offset += auditPageSize {
					page, err := collaborators.List(cmd.Context(), auditPageSize, offset)
					if err != nil {
						return fmt.Errorf("audit: %w", err)
					}
					for _, c := range page {
						ids = append(ids, c.ID)
					}
					if len(page) < auditPageSize {
						break
					}
				}
			} else {
				id, err := parseID("collaborator", args[0])
				if err != nil {
					return err
				}
				ids = []uuid.UUID{id}
			}

			reports := make([]*balance.AuditReport, 0, len(ids))
			drifted := 0
			for _, id := range ids {
				r, err := aggregator.Audit(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("audit %s: %w", id, err)
				}
				if r.Drift() {
					drifted++
				}
				reports = append(reports, r)
			}

			if ctx.jsonOutput {
				out := make([]auditOutput, len(reports))
				for i, r := range reports {
					out[i] = auditOutput{
						CollaboratorID:   r.CollaboratorID.String(),
						Drift:            r.Drift(),
						CachedAvailable:  r.Cached.Available,
						DerivedAvailable: r.Derived.Available,
						CachedEarnings:   r.Cached.TotalEarnings,
						DerivedEarnings:  r.Derived.TotalEarnings,
						CachedPending:    r.Cached.Pending,
						DerivedPending:   r.Derived.Pending,
						CachedPayouts:    r.Cached.TotalPayouts,
						DerivedPayouts:   r.Derived.TotalPayouts,
					}
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				rows := make([][]string, len(reports))
				for i, r := range reports {
					status := "ok"
					if r.Drift() {
						status = "DRIFT"
					}
					rows[i] = []string{
						r.CollaboratorID.String(),
						pair(r.Cached.Available, r.Derived.Available),
						pair(r.Cached.Pending, r.Derived.Pending),
						pair(r.Cached.TotalEarnings, r.Derived.TotalEarnings),
						pair(r.Cached.TotalPayouts, r.Derived.TotalPayouts),
						status,
					}
				}
				renderTable(cmd.OutOrStdout(),
					[]string{"COLLABORATOR", "AVAILABLE", "PENDING", "EARNED", "PAID OUT", "STATUS"},
					rows,
					[]columnAlign{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				)
			}

			if drifted > 0 {
				return fmt.Errorf("%w: %d of %d collaborators", errDrift, drifted, len(reports))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Audit every collaborator")
	return cmd
}

// pair renders cached/derived, collapsing to one value when they agree.
func pair(cached, derived int64) string {
	if cached == derived {
		return domain.FormatMinor(cached)
	}
	return domain.FormatMinor(cached) + " / " + domain.FormatMinor(derived)
}
