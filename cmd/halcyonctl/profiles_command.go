package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"halcyon.studio/cinema/internal/app/modules"
)

func newProfilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the production profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := modules.Catalog(cfg.Production)
			if err != nil {
				return err
			}
			rows := make([][]string, 0)
			for _, p := range catalog.List() {
				rows = append(rows, []string{
					p.ID,
					p.QualityTier,
					p.Video.Resolution,
					strconv.Itoa(p.Video.MaxClips),
					strconv.Itoa(p.Video.ClipSeconds),
					strings.Join(p.ContentTypes, ","),
					strings.Join(p.Platforms, ","),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Tier", "Resolution", "Clips", "Clip s", "Content", "Platforms"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
