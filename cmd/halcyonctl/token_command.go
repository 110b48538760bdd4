package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"halcyon.studio/cinema/internal/api/middleware"
	"halcyon.studio/cinema/internal/app/modules"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token signed with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jwtCfg := modules.JWTConfig(cfg)
			if ttl > 0 {
				jwtCfg.ExpiresIn = ttl
			}
			token, expiresAt, err := middleware.GenerateToken(jwtCfg, args[0], roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant (repeatable), e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: security.token_ttl)")
	return cmd
}
