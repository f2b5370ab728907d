package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/batch"
	"github.com/ramonehamilton/duelmeta/internal/config"
	"github.com/ramonehamilton/duelmeta/internal/display"
	"github.com/ramonehamilton/duelmeta/internal/events"
	"github.com/ramonehamilton/duelmeta/internal/meta"
	"github.com/ramonehamilton/duelmeta/internal/metrics"
)

var runToDB bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start or resume a batch run, drain it and print the meta report.",
	Long: `Start a new run, or resume the stored checkpoint, and process every
discovered tournament. Interrupting the run pauses it; the checkpoint is kept
and the next invocation resumes where it stopped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src, closeSource, err := newSource()
		if err != nil {
			return err
		}
		defer closeSource()

		store, closeStore, err := openCheckpoint(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		progress := display.NewProgressObserver(os.Stderr)
		dispatcher := events.NewEventDispatcher(logger)
		dispatcher.Register(progress)
		dispatcher.Register(events.NewLoggingObserver(logger, cfg.App.DebugMode))

		runMetrics := metrics.NewRunMetrics()
		ec := batch.DefaultEngineConfig()
		ec.Source = src
		ec.Store = store
		ec.Dispatcher = dispatcher
		ec.Metrics = runMetrics
		ec.YieldDelay = config.Duration(cfg.Batch.YieldDelay)
		ec.BatchSize = cfg.Batch.BatchSize
		ec.Discover = cfg.DiscoverOptions(logger)
		ec.Logger = logger

		engine, err := batch.NewEngine(ec)
		if err != nil {
			return err
		}

		final, err := engine.Run(ctx)
		if finishErr := progress.Finish(); finishErr != nil {
			logger.Debug("Progress bar finish failed", "error", finishErr)
		}

		out := cmd.OutOrStdout()
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(out, display.Muted(fmt.Sprintf(
				"Paused after %d of %d tournaments. Run again to resume.", final.Processed(), final.Total)))
			return nil
		case errors.Is(err, batch.ErrCancelled):
			fmt.Fprintln(out, display.Muted("Run cancelled, checkpoint cleared."))
			return nil
		case errors.Is(err, batch.ErrNoTournaments):
			fmt.Fprintln(out, display.Muted("No tournaments matched the discovery rules."))
			return nil
		case err != nil:
			return err
		}

		records := meta.DedupeRecords(final.Results)
		view := aggregate.Compute(records, aggregate.Filter{}, cfg.AggregateOptions())
		fmt.Fprintln(out, display.Heading(fmt.Sprintf("%s: %d decks from %d tournaments", final.Source, view.Total, final.Total)))
		display.ReportTables(out, view)
		display.MetricsTable(out, runMetrics.GetStats())

		if runToDB {
			db, err := openDB("")
			if err != nil {
				return err
			}
			defer db.Close()
			inserted, err := db.Records().SaveRecords(ctx, final.RunID, records)
			if err != nil {
				return fmt.Errorf("export to database: %w", err)
			}
			fmt.Fprintln(out, display.Success(fmt.Sprintf("Stored %d new records in %s", inserted, cfg.Storage.DBPath)))
		}
		fmt.Fprintln(out, display.Muted("Use `duelmeta clean` to discard the finished run."))
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Preview the tournaments a run would process, without a checkpoint.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeSource, err := newSource()
		if err != nil {
			return err
		}
		defer closeSource()

		refs, err := meta.Discover(cmd.Context(), src, cfg.DiscoverOptions(logger))
		if err != nil {
			return err
		}
		display.ReferenceTable(cmd.OutOrStdout(), refs)
		return nil
	},
}

// newSource creates the configured adapter and its page renderer.
func newSource() (meta.Source, func(), error) {
	browser := cfg.Browser()
	opts := cfg.SourceOptions(logger)
	opts.Browser = browser

	closeBrowser := func() {
		if err := browser.Close(); err != nil {
			logger.Warn("Failed to close browser", "error", err)
		}
	}

	src, err := meta.NewSource(cfg.Source.Name, opts)
	if err != nil {
		closeBrowser()
		return nil, nil, err
	}
	return src, closeBrowser, nil
}

func init() {
	runCmd.Flags().BoolVar(&runToDB, "db", false, "also store the records in the dataset database")
	rootCmd.AddCommand(runCmd, discoverCmd)
}
