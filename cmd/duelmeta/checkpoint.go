package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/duelmeta/internal/batch"
	"github.com/ramonehamilton/duelmeta/internal/display"
	"github.com/ramonehamilton/duelmeta/internal/meta"
)

var (
	statusLogTail  int
	coverageFromDB bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored checkpoint: state, progress and recent log lines.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadCheckpoint(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if snap.Empty() {
			fmt.Fprintln(out, display.Muted("No checkpoint stored."))
			return nil
		}
		display.StatusTable(out, checkpointState(snap), snap, statusLogTail)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Abandon the stored run and clear its checkpoint. A running driver stops at its next unit.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeStore, err := checkpointEngine(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := engine.Cancel(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), display.Success("Checkpoint cleared."))
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Acknowledge a finished run and delete its checkpoint.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadCheckpoint(cmd.Context())
		if err != nil {
			return err
		}
		if len(snap.Queue) > 0 {
			return fmt.Errorf("run %s still has %d tournaments queued; resume it with run or abandon it with cancel",
				snap.RunID, len(snap.Queue))
		}

		engine, closeStore, err := checkpointEngine(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := engine.Clean(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), display.Success("Finished run cleaned."))
		return nil
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Show top cut coverage per event.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, closeSource, err := recordSource(cmd.Context(), coverageFromDB)
		if err != nil {
			return err
		}
		defer closeSource()

		records, err := source.ListRecords(cmd.Context())
		if err != nil {
			return err
		}
		display.CoverageTable(cmd.OutOrStdout(), coverageRows(meta.DedupeRecords(records)))
		return nil
	},
}

// coverageRows groups records by event in first-seen order.
func coverageRows(records []meta.DeckRecord) []display.CoverageRow {
	var order []string
	placements := make(map[string][]meta.Placement)
	for _, r := range records {
		if _, ok := placements[r.Event]; !ok {
			order = append(order, r.Event)
		}
		placements[r.Event] = append(placements[r.Event], meta.Placement(r.Placement))
	}

	rows := make([]display.CoverageRow, 0, len(order))
	for _, event := range order {
		rows = append(rows, display.CoverageRow{
			Event:    event,
			Decks:    len(placements[event]),
			Coverage: meta.AnalyzeCoverage(placements[event]),
		})
	}
	return rows
}

// checkpointEngine creates an idle engine over the configured store for
// operations that do not fetch. It has no source, so an unknown or
// misconfigured site never blocks cancel or clean.
func checkpointEngine(cmd *cobra.Command) (*batch.Engine, func(), error) {
	store, closeStore, err := openCheckpoint(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	ec := batch.DefaultEngineConfig()
	ec.Store = store
	ec.Logger = logger
	engine, err := batch.NewEngine(ec)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return engine, closeStore, nil
}

func init() {
	statusCmd.Flags().IntVar(&statusLogTail, "logs", 10, "number of log lines to show (0 for all)")
	coverageCmd.Flags().BoolVar(&coverageFromDB, "from-db", false, "read records from the dataset database instead of the checkpoint")
	rootCmd.AddCommand(statusCmd, cancelCmd, cleanCmd, coverageCmd)
}
