package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/canon"
	"github.com/ramonehamilton/duelmeta/internal/display"
	"github.com/ramonehamilton/duelmeta/internal/meta"
)

var lookupFlags struct {
	cardsPath string
	cardsURL  string
	limit     int
	fromDB    bool
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <card name>",
	Short: "Show how often a card is played in each zone.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := strings.Join(args, " ")

		source, closeSource, err := recordSource(ctx, lookupFlags.fromDB)
		if err != nil {
			return err
		}
		defer closeSource()

		records, err := source.ListRecords(ctx)
		if err != nil {
			return err
		}
		view := aggregate.Compute(meta.DedupeRecords(records), aggregate.Filter{}, cfg.AggregateOptions())

		var suggestions []canon.Match
		index, err := loadCardIndex(cmd)
		if err != nil {
			return err
		}
		if index != nil {
			suggestions = index.Search(name, canon.SearchOptions{Limit: lookupFlags.limit})
		}

		display.LookupTable(cmd.OutOrStdout(), view.Lookup(name), suggestions)
		return nil
	},
}

// loadCardIndex returns the reference card index, or nil when none is
// configured.
func loadCardIndex(cmd *cobra.Command) (*canon.Index, error) {
	switch {
	case lookupFlags.cardsPath != "":
		return canon.LoadIndex(lookupFlags.cardsPath)
	case lookupFlags.cardsURL != "":
		return canon.FetchIndex(cmd.Context(), lookupFlags.cardsURL, 30*time.Second)
	}
	return nil, nil
}

func init() {
	f := lookupCmd.Flags()
	f.StringVar(&lookupFlags.cardsPath, "cards", "", "reference card CSV (name,type) for name suggestions")
	f.StringVar(&lookupFlags.cardsURL, "cards-url", "", "card database API URL for name suggestions")
	f.IntVar(&lookupFlags.limit, "suggestions", 5, "maximum number of name suggestions")
	f.BoolVar(&lookupFlags.fromDB, "from-db", false, "read records from the dataset database instead of the checkpoint")
	lookupCmd.MarkFlagsMutuallyExclusive("cards", "cards-url")
	rootCmd.AddCommand(lookupCmd)
}
