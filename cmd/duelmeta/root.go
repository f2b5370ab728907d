package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/duelmeta/internal/batch"
	"github.com/ramonehamilton/duelmeta/internal/config"
	"github.com/ramonehamilton/duelmeta/internal/meta"
	"github.com/ramonehamilton/duelmeta/internal/report"
	"github.com/ramonehamilton/duelmeta/internal/storage"
)

var (
	configPath string
	debugMode  bool
	logFormat  string
	sourceName string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "duelmeta",
	Short:         "duelmeta discovers Yu-Gi-Oh tournaments, scrapes their decklists and summarizes the meta.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("debug") {
			loaded.App.DebugMode = debugMode
		}
		if logFormat != "" {
			loaded.App.LogFormat = logFormat
		}
		if sourceName != "" {
			loaded.Source.Name = sourceName
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(os.Stderr, cfg.App)
		slog.SetDefault(logger)
		logger.Debug("Configuration loaded", "path", configPath, "source", cfg.Source.Name)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultPath(), "path to the TOML configuration file")
	pf.BoolVar(&debugMode, "debug", false, "enable debug logging")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&sourceName, "source", "", "tournament source: "+fmt.Sprint(meta.SourceNames()))
}

func newLogger(w io.Writer, app config.AppConfig) *slog.Logger {
	level := slog.LevelInfo
	if app.DebugMode {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if app.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openCheckpoint returns the configured checkpoint store and its closer.
func openCheckpoint(ctx context.Context) (batch.Store, func(), error) {
	if cfg.Batch.CheckpointBackend == config.BackendRedis {
		rc := batch.DefaultRedisConfig(cfg.Batch.RedisAddr)
		if cfg.Batch.RedisKey != "" {
			rc.Key = cfg.Batch.RedisKey
		}
		store, err := batch.NewRedisStore(ctx, rc)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close redis store", "error", err)
			}
		}, nil
	}
	return batch.NewFileStore(cfg.Batch.CheckpointPath), func() {}, nil
}

// loadCheckpoint returns the stored run, or an empty state when there is none.
func loadCheckpoint(ctx context.Context) (batch.BatchState, error) {
	store, closeStore, err := openCheckpoint(ctx)
	if err != nil {
		return batch.BatchState{}, err
	}
	defer closeStore()

	state, err := store.Load(ctx)
	if errors.Is(err, batch.ErrNoCheckpoint) {
		return batch.BatchState{}, nil
	}
	return state, err
}

func openDB(path string) (*storage.DB, error) {
	sc := cfg.StorageConfig()
	if path != "" {
		sc.Path = path
	}
	return storage.Open(sc)
}

// recordSource returns the checkpoint results, or the dataset database
// when fromDB is set. The closer must be called when done.
func recordSource(ctx context.Context, fromDB bool) (report.RecordSource, func(), error) {
	if fromDB {
		db, err := openDB("")
		if err != nil {
			return nil, nil, err
		}
		return db.Records(), func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close database", "error", err)
			}
		}, nil
	}
	store, closeStore, err := openCheckpoint(ctx)
	if err != nil {
		return nil, nil, err
	}
	return report.CheckpointRecords{Store: store}, closeStore, nil
}

// checkpointState infers the machine state of a stored run.
func checkpointState(snap batch.BatchState) batch.State {
	if len(snap.Queue) > 0 {
		return batch.StateDraining
	}
	return batch.StateIdle
}
