package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

type splitOutput struct {
	ID             string     `json:"id"`
	CollaboratorID string     `json:"collaborator_id"`
	Role           string     `json:"role"`
	Percentage     string     `json:"percentage"`
	BasisPoints    int64      `json:"basis_points"`
	EffectiveDate  time.Time  `json:"effective_date"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
}

func newSplitsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splits",
		Short: "Inspect and lock project royalty splits",
	}
	cmd.AddCommand(newSplitsListCommand(ctx))
	cmd.AddCommand(newSplitsLockCommand(ctx))
	return cmd
}

func newSplitsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List every split row for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			registry, err := ctx.registry(cmd.Context())
			if err != nil {
				return err
			}
			list, err := registry.ListSplits(cmd.Context(), projectID)
			if err != nil {
				return fmt.Errorf("splits list: %w", err)
			}

			if ctx.jsonOutput {
				out := make([]splitOutput, len(list))
				for i, s := range list {
					out[i] = splitOutput{
						ID:             s.ID.String(),
						CollaboratorID: s.CollaboratorID.String(),
						Role:           s.Role,
						Percentage:     domain.FormatBasisPoints(s.BasisPoints),
						BasisPoints:    s.BasisPoints,
						EffectiveDate:  s.EffectiveDate,
						LockedAt:       s.LockedAt,
					}
				}
				return writeJSON(cmd, out)
			}

			rows := make([][]string, len(list))
			for i, s := range list {
				locked := "-"
				if s.LockedAt != nil {
					locked = s.LockedAt.Format(time.RFC3339)
				}
				rows[i] = []string{
					s.CollaboratorID.String(),
					s.Role,
					domain.FormatBasisPoints(s.BasisPoints) + "%",
					s.EffectiveDate.Format(time.RFC3339),
					locked,
				}
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"COLLABORATOR", "ROLE", "SHARE", "EFFECTIVE", "LOCKED"},
				rows,
				[]columnAlign{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			return nil
		},
	}
}

func newSplitsLockCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <project-id>",
		Short: "Lock every split currently in force for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			registry, err := ctx.registry(cmd.Context())
			if err != nil {
				return err
			}
			n, err := registry.LockSplits(cmd.Context(), projectID)
			if err != nil {
				return fmt.Errorf("splits lock: %w", err)
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, map[string]int64{"locked": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "locked %d split(s)\n", n)
			return nil
		},
	}
}
