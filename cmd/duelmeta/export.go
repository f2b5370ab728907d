package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/duelmeta/internal/display"
	"github.com/ramonehamilton/duelmeta/internal/export"
	"github.com/ramonehamilton/duelmeta/internal/meta"
	"github.com/ramonehamilton/duelmeta/internal/version"
)

const formatSQLite = "sqlite"

var exportFlags struct {
	format    string
	out       string
	overwrite bool
	fromDB    bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the collected records as JSON, CSV or into a SQLite database.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		source, closeSource, err := recordSource(ctx, exportFlags.fromDB)
		if err != nil {
			return err
		}
		defer closeSource()

		records, err := source.ListRecords(ctx)
		if err != nil {
			return err
		}
		records = meta.DedupeRecords(records)
		out := cmd.OutOrStdout()

		if exportFlags.format == formatSQLite {
			if exportFlags.fromDB {
				return fmt.Errorf("records already come from the database")
			}
			snap, err := loadCheckpoint(ctx)
			if err != nil {
				return err
			}
			db, err := openDB(exportFlags.out)
			if err != nil {
				return err
			}
			defer db.Close()
			inserted, err := db.Records().SaveRecords(ctx, snap.RunID, records)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, display.Success(fmt.Sprintf("Stored %d new of %d records", inserted, len(records))))
			return nil
		}

		format, err := export.ParseFormat(exportFlags.format)
		if err != nil {
			return err
		}
		path := exportFlags.out
		if path == "" {
			path = filepath.Join(cfg.Report.OutputDir, export.GenerateFilename("duelmeta", format, time.Now()))
		}
		if path == "-" {
			return export.ExportRecords(out, format, records)
		}
		exporter := export.NewExporter(export.Options{
			Format:     format,
			FilePath:   path,
			PrettyJSON: true,
			Overwrite:  exportFlags.overwrite,
		})
		if err := exporter.ExportRecords(records); err != nil {
			return err
		}
		fmt.Fprintln(out, display.Success(fmt.Sprintf("Exported %d records to %s", len(records), path)))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Args:  cobra.NoArgs,
	// Skip configuration loading.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "duelmeta", version.GetVersion())
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.format, "format", string(export.FormatJSON), "json, csv (one row per card), summary (one row per deck) or sqlite")
	f.StringVar(&exportFlags.out, "out", "", "output path; - writes to stdout, sqlite defaults to the configured database")
	f.BoolVar(&exportFlags.overwrite, "overwrite", false, "replace an existing output file")
	f.BoolVar(&exportFlags.fromDB, "from-db", false, "read records from the dataset database instead of the checkpoint")
	rootCmd.AddCommand(exportCmd, versionCmd)
}
