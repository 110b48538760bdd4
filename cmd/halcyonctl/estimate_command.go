package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"halcyon.studio/cinema/internal/app/modules"
	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/production"
)

func newEstimateCommand(ctx *commandContext) *cobra.Command {
	var (
		req    domain.ProductionRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Price a production without generating anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := modules.Catalog(cfg.Production)
			if err != nil {
				return err
			}
			profile, err := catalog.Resolve(req)
			if err != nil {
				return err
			}
			est, err := production.Estimate(req, profile, modules.Pricing(cfg.Credits))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(est)
			}
			rows := make([][]string, 0, len(est.Stages)+1)
			for _, s := range est.Stages {
				rows = append(rows, []string{string(s.Stage), strconv.Itoa(s.Calls), strconv.FormatInt(s.Credits, 10)})
			}
			rows = append(rows, []string{"total", "", strconv.FormatInt(est.Total, 10)})
			fmt.Fprintf(out, "Profile: %s (%d clips, %ds)\n", est.ProfileID, est.Clips, est.Seconds)
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Calls", "Credits"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Prompt, "prompt", "", "Episode prompt")
	f.StringVar(&req.Script, "script", "", "Narration script")
	f.Float64Var(&req.TargetDuration, "duration", 30, "Target duration in seconds")
	f.StringVar(&req.ProfileID, "profile", "", "Profile ID (default: best match)")
	f.BoolVar(&req.QuickMode, "quick", false, "Use the quick tier")
	f.BoolVar(&req.Settings.IncludeMusic, "music", false, "Include a music bed")
	f.BoolVar(&req.Settings.IncludeVoiceover, "voiceover", false, "Include narration")
	f.BoolVar(&req.Settings.IncludeCaptions, "captions", false, "Include captions")
	f.StringVar(&req.Settings.ContentType, "content-type", "", "Content type hint")
	f.StringVar(&req.Settings.TargetPlatform, "platform", "", "Target platform hint")
	f.StringVar(&req.Settings.QualityTier, "quality", "", "Quality tier hint")
	f.BoolVar(&asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}
