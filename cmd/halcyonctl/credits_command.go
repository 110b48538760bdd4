package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/governance/audit"
	"halcyon.studio/cinema/internal/infrastructure"
	"halcyon.studio/cinema/internal/notification"
	"halcyon.studio/cinema/internal/repository"
	"halcyon.studio/cinema/internal/usecase"
)

const cliActor = "halcyonctl"

func newCreditsCommand(ctx *commandContext) *cobra.Command {
	creditsCmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant user credits",
	}
	creditsCmd.AddCommand(newCreditsShowCommand(ctx))
	creditsCmd.AddCommand(newCreditsGrantCommand(ctx))
	return creditsCmd
}

func (c *commandContext) withCredits(ctx context.Context, fn func(*usecase.CreditsUseCase) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return c.withDatabase(ctx, func(db *infrastructure.DatabaseClients) error {
		svc := credits.NewService(repository.NewPostgresLedger(db.Pool), nil, cfg.Credits.StartingBalance)
		uc := usecase.NewCreditsUseCase(svc, audit.NewLogger(db.Pool), notification.NewTriggers(notification.NewInboxSender(db.Pool)))
		return fn(uc)
	})
}

func newCreditsShowCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's balance and recent transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCredits(cmd.Context(), func(uc *usecase.CreditsUseCase) error {
				summary, err := uc.Summary(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Balance: %d\n", summary.CreditsRemaining)
				if len(summary.Transactions) == 0 {
					fmt.Fprintln(out, "Transactions: none")
					return nil
				}
				fmt.Fprintln(out, transactionsTable(summary.Transactions))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of transactions")
	return cmd
}

func transactionsTable(txs []domain.CreditTransaction) string {
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		amount := strconv.FormatInt(tx.Amount, 10)
		if tx.Type == domain.TxGeneration {
			amount = "-" + amount
		}
		rows = append(rows, []string{
			tx.CreatedAt.Local().Format(time.DateTime),
			string(tx.Type),
			amount,
			tx.Reason,
			tx.ReferenceID,
		})
	}
	return renderTable(
		[]string{"When", "Type", "Amount", "Reason", "Reference"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func newCreditsGrantCommand(ctx *commandContext) *cobra.Command {
	var in usecase.GrantInput
	var grantType string
	cmd := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Grant a bonus or refund",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.UserID = args[0]
			in.Type = domain.TransactionType(grantType)
			return ctx.withCredits(cmd.Context(), func(uc *usecase.CreditsUseCase) error {
				remaining, err := uc.Grant(cmd.Context(), cliActor, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %d %s credits to %s; balance %d\n", in.Amount, in.Type, in.UserID, remaining)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.Int64Var(&in.Amount, "amount", 0, "Credits to add")
	f.StringVar(&grantType, "type", string(domain.TxBonus), "bonus or refund")
	f.StringVar(&in.Reason, "reason", "", "Reason recorded on the transaction")
	f.StringVar(&in.ReferenceID, "ref", "", "Idempotency reference")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
