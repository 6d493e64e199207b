package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type sweepOutput struct {
	Resubmitted int   `json:"resubmitted"`
	Refreshed   int   `json:"refreshed"`
	Failed      int   `json:"failed"`
	Expired     int64 `json:"expired_idempotency_keys"`
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass over stuck payouts",
		Long: "Resubmits pending payouts that never reached the provider, refreshes in-transit\n" +
			"payouts from the provider and expires cached idempotent responses.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sweeper, err := ctx.sweeper(cmd.Context(), staleAfter)
			if err != nil {
				return err
			}
			report, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			if ctx.jsonOutput {
				return writeJSON(cmd, sweepOutput{
					Resubmitted: report.Resubmitted,
					Refreshed:   report.Refreshed,
					Failed:      report.Failed,
					Expired:     report.Expired,
				})
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"RESUBMITTED", "REFRESHED", "FAILED", "EXPIRED KEYS"},
				[][]string{{
					fmt.Sprint(report.Resubmitted),
					fmt.Sprint(report.Refreshed),
					fmt.Sprint(report.Failed),
					fmt.Sprint(report.Expired),
				}},
				[]columnAlign{alignRight, alignRight, alignRight, alignRight},
			)
			return nil
		},
	}

	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "Override SWEEP_STALE_AFTER for this run")
	return cmd
}
