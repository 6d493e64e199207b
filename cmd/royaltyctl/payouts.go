package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
)

type payoutOutput struct {
	ID          string              `json:"id"`
	Kind        domain.PayoutKind   `json:"kind"`
	Status      domain.PayoutStatus `json:"status"`
	Amount      int64               `json:"amount"`
	FeeAmount   int64               `json:"fee_amount"`
	NetAmount   int64               `json:"net_amount"`
	Currency    domain.Currency     `json:"currency"`
	ExternalRef *string             `json:"external_reference_id,omitempty"`
	Failure     *string             `json:"failure_reason,omitempty"`
	RequestedAt time.Time           `json:"requested_at"`
}

type payoutListOutput struct {
	Payouts []payoutOutput `json:"payouts"`
	Total   int            `json:"total"`
}

func newPayoutsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Inspect payouts",
	}
	cmd.AddCommand(newPayoutsListCommand(ctx))
	return cmd
}

func newPayoutsListCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list <collaborator-id>",
		Short: "List a collaborator's payouts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("collaborator", args[0])
			if err != nil {
				return err
			}
			if limit <= 0 || offset < 0 {
				return fmt.Errorf("--limit must be positive and --offset non-negative")
			}
			repo, err := ctx.payoutRepo(cmd.Context())
			if err != nil {
				return err
			}
			list, total, err := repo.ListByCollaborator(cmd.Context(), id, limit, offset)
			if err != nil {
				return fmt.Errorf("payouts list: %w", err)
			}

			if ctx.jsonOutput {
				out := payoutListOutput{Payouts: make([]payoutOutput, len(list)), Total: total}
				for i := range list {
					p := &list[i]
					out.Payouts[i] = payoutOutput{
						ID:          p.ID.String(),
						Kind:        p.Kind,
						Status:      p.Status,
						Amount:      p.Amount,
						FeeAmount:   p.FeeAmount,
						NetAmount:   p.NetAmount(),
						Currency:    p.Currency,
						ExternalRef: p.ExternalReferenceID,
						Failure:     p.FailureReason,
						RequestedAt: p.RequestedAt,
					}
				}
				return writeJSON(cmd, out)
			}

			rows := make([][]string, len(list))
			for i := range list {
				p := &list[i]
				ref := "-"
				if p.ExternalReferenceID != nil {
					ref = *p.ExternalReferenceID
				}
				rows[i] = []string{
					p.ID.String(),
					string(p.Kind),
					string(p.Status),
					domain.FormatMinor(p.Amount),
					domain.FormatMinor(p.FeeAmount),
					ref,
					p.RequestedAt.Format(time.RFC3339),
				}
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"ID", "KIND", "STATUS", "AMOUNT", "FEE", "PROVIDER REF", "REQUESTED"},
				rows,
				[]columnAlign{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintf(cmd.OutOrStdout(), "showing %d of %d\n", len(list), total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}
