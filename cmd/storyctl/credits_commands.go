package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storybook-server/internal/handler"
	"storybook-server/shared/models"
)

func newCreditsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Credit balance and admin grants",
	}

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the balance of the token's user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var acc models.CreditAccount
			if err := ctx.client().get(cmd.Context(), "/credits/balance", &acc); err != nil {
				return err
			}
			if ctx.jsonOut {
				return writeJSON(cmd, acc)
			}
			rows := [][]string{{
				acc.UserID,
				strconv.FormatInt(acc.Balance, 10),
				strconv.FormatInt(acc.LifetimeEarned, 10),
				strconv.FormatInt(acc.LifetimeSpent, 10),
			}}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"User", "Balance", "Earned", "Spent"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
			return nil
		},
	}

	var req handler.GrantRequest
	grantCmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant credits to a user (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.UserID == "" {
				return errors.New("--user is required")
			}
			if req.Amount <= 0 {
				return errors.New("--amount must be positive")
			}
			var tx models.CreditTransaction
			if err := ctx.client().post(cmd.Context(), "/admin/credits/grant", req, &tx); err != nil {
				return err
			}
			if ctx.jsonOut {
				return writeJSON(cmd, tx)
			}
			ref := ""
			if tx.Reference != nil {
				ref = *tx.Reference
			}
			rows := [][]string{{
				tx.ID.String(), tx.UserID, strconv.FormatInt(tx.Amount, 10),
				string(tx.Reason), ref, tx.CreatedAt.Format(time.RFC3339),
			}}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "User", "Amount", "Reason", "Reference", "Created"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
	grantCmd.Flags().StringVar(&req.UserID, "user", "", "User ID to credit")
	grantCmd.Flags().Int64Var(&req.Amount, "amount", 0, "Number of credits")
	grantCmd.Flags().StringVar(&req.Reason, "reason", string(models.ReasonAdminGrant), "Ledger reason")
	grantCmd.Flags().StringVar(&req.Reference, "reference", "", "Idempotency reference")

	cmd.AddCommand(balanceCmd, grantCmd)
	return cmd
}
