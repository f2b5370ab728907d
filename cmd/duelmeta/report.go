package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/charts"
	"github.com/ramonehamilton/duelmeta/internal/display"
	"github.com/ramonehamilton/duelmeta/internal/report"
)

var reportFlags struct {
	countries  []string
	tiers      []string
	minPlayers int
	filterPath string
	watch      bool
	htmlPath   string
	open       bool
	fromDB     bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize archetypes and card inclusion over the collected decks.",
	Long: `Summarize the collected decks: archetype frequencies, the best converting
archetype and the most included cards per zone. Filters come from flags or from
a TOML file with countries, tiers and min_players keys. With --watch the report
is rebuilt whenever the filter file changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if reportFlags.watch && reportFlags.filterPath == "" {
			return fmt.Errorf("--watch requires --filter")
		}

		source, closeSource, err := recordSource(ctx, reportFlags.fromDB)
		if err != nil {
			return err
		}
		defer closeSource()

		builder := &report.Builder{Source: source, Options: cfg.AggregateOptions(), Logger: logger}
		out := cmd.OutOrStdout()

		if reportFlags.watch {
			return builder.Watch(ctx, reportFlags.filterPath, func(view *aggregate.View, err error) {
				if err != nil {
					fmt.Fprintln(out, display.Error(err.Error()))
					return
				}
				if err := printReport(out, view); err != nil {
					fmt.Fprintln(out, display.Error(err.Error()))
				}
			})
		}

		filter, err := reportFilter(cmd)
		if err != nil {
			return err
		}
		view, err := builder.Build(ctx, filter)
		if err != nil {
			return err
		}
		return printReport(out, view)
	},
}

// reportFilter reads the filter file when given; flags set on the command
// line override its fields.
func reportFilter(cmd *cobra.Command) (aggregate.Filter, error) {
	var filter aggregate.Filter
	if reportFlags.filterPath != "" {
		f, err := report.LoadFilter(reportFlags.filterPath)
		if err != nil {
			return aggregate.Filter{}, err
		}
		filter = f
	}

	flags, err := report.NewFilter(reportFlags.countries, reportFlags.tiers, reportFlags.minPlayers)
	if err != nil {
		return aggregate.Filter{}, err
	}
	if cmd.Flags().Changed("country") {
		filter.Countries = flags.Countries
	}
	if cmd.Flags().Changed("tier") {
		filter.Tiers = flags.Tiers
	}
	if cmd.Flags().Changed("min-players") {
		filter.MinPlayers = flags.MinPlayers
	}
	return filter, nil
}

func printReport(w io.Writer, view *aggregate.View) error {
	fmt.Fprintln(w, display.Heading(fmt.Sprintf("Meta report: %d decks", view.Total)))
	display.ReportTables(w, view)

	if reportFlags.htmlPath == "" {
		return nil
	}
	cc := charts.DefaultChartConfig()
	cc.Theme = cfg.Report.ChartTheme
	if err := charts.RenderMetaReport(view, cc, reportFlags.htmlPath); err != nil {
		return err
	}
	fmt.Fprintln(w, display.Success("Chart report written to "+reportFlags.htmlPath))
	if reportFlags.open {
		return charts.OpenInBrowser(reportFlags.htmlPath)
	}
	return nil
}

func init() {
	f := reportCmd.Flags()
	f.StringSliceVar(&reportFlags.countries, "country", nil, "only decks from these countries (repeatable)")
	f.StringSliceVar(&reportFlags.tiers, "tier", nil, "only these event tiers: premier, regional, other (repeatable)")
	f.IntVar(&reportFlags.minPlayers, "min-players", 0, "only events with at least this many players")
	f.StringVar(&reportFlags.filterPath, "filter", "", "TOML filter file")
	f.BoolVar(&reportFlags.watch, "watch", false, "rebuild the report when the filter file changes")
	f.StringVar(&reportFlags.htmlPath, "html", "", "also write an HTML chart report to this path")
	f.BoolVar(&reportFlags.open, "open", false, "open the HTML report in the browser")
	f.BoolVar(&reportFlags.fromDB, "from-db", false, "read records from the dataset database instead of the checkpoint")
	rootCmd.AddCommand(reportCmd)
}
