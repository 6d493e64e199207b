package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

type balanceOutput struct {
	CollaboratorID string `json:"collaborator_id"`
	Available      int64  `json:"available"`
	Pending        int64  `json:"pending"`
	TotalEarnings  int64  `json:"total_earnings"`
	TotalPayouts   int64  `json:"total_payouts"`
}

func newBalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <collaborator-id>",
		Short: "Show a collaborator's cached balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("collaborator", args[0])
			if err != nil {
				return err
			}
			balances, _, err := ctx.balances(cmd.Context())
			if err != nil {
				return err
			}
			b, err := balances.GetBalance(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("balance: %w", err)
			}

			if ctx.jsonOutput {
				return writeJSON(cmd, balanceOutput{
					CollaboratorID: id.String(),
					Available:      b.Available,
					Pending:        b.Pending,
					TotalEarnings:  b.TotalEarnings,
					TotalPayouts:   b.TotalPayouts,
				})
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"AVAILABLE", "PENDING", "EARNED", "PAID OUT"},
				[][]string{{
					domain.FormatMinor(b.Available),
					domain.FormatMinor(b.Pending),
					domain.FormatMinor(b.TotalEarnings),
					domain.FormatMinor(b.TotalPayouts),
				}},
				[]columnAlign{alignRight, alignRight, alignRight, alignRight},
			)
			return nil
		},
	}
}
