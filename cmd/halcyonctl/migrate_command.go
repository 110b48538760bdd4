package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"halcyon.studio/cinema/internal/infrastructure"
	"halcyon.studio/cinema/internal/repository"
)

var migrateCommands = []string{"up", "down", "status", "version"}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Run database schema migrations",
		Long:      "up also applies the River queue tables; the other commands only touch the service schema.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrateCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args[0]
			return ctx.withDatabase(cmd.Context(), func(db *infrastructure.DatabaseClients) error {
				if command == "up" {
					if err := db.AutoMigrate(cmd.Context()); err != nil {
						return err
					}
				} else if err := repository.MigratePool(cmd.Context(), db.Pool, command); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", command)
				return nil
			})
		},
	}
}
