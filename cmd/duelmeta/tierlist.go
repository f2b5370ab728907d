package main

import (
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/duelmeta/internal/display"
	"github.com/ramonehamilton/duelmeta/internal/meta"
)

var tierListTechs bool

var tierListCmd = &cobra.Command{
	Use:   "tierlist",
	Short: "Show the yugiohmeta tier list: archetype shares, techs and side deck staples.",
	Long: `Read the yugiohmeta tier list page. With --techs, read the techs view
instead, once over all events and once with the T3 events filter on.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		browser := cfg.Browser()
		defer func() {
			if err := browser.Close(); err != nil {
				logger.Warn("Failed to close browser", "error", err)
			}
		}()
		site := meta.NewYugiohMeta(cfg.SourceOptions(logger).YugiohMeta, browser)
		out := cmd.OutOrStdout()

		if tierListTechs {
			report, err := site.Techs(cmd.Context())
			if err != nil {
				return err
			}
			display.TechTable(out, "Techs, all events", report.All)
			display.TechTable(out, "Techs, T3 events", report.T3)
			return nil
		}

		list, err := site.TierList(cmd.Context())
		if err != nil {
			return err
		}
		display.TierListTables(out, list)
		return nil
	},
}

func init() {
	tierListCmd.Flags().BoolVar(&tierListTechs, "techs", false, "read the techs view for all events and T3 events")
	rootCmd.AddCommand(tierListCmd)
}
