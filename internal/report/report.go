// Package report builds aggregate views from stored records and keeps them
// current while a filter file is edited.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/batch"
	"github.com/ramonehamilton/duelmeta/internal/meta"
)

// RecordSource supplies the records a report is built from.
type RecordSource interface {
	ListRecords(ctx context.Context) ([]meta.DeckRecord, error)
}

// CheckpointRecords reads the results held in a batch checkpoint.
type CheckpointRecords struct {
	Store batch.Store
}

// ListRecords returns the checkpoint results. A missing checkpoint yields
// no records.
func (c CheckpointRecords) ListRecords(ctx context.Context) ([]meta.DeckRecord, error) {
	state, err := c.Store.Load(ctx)
	if errors.Is(err, batch.ErrNoCheckpoint) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state.Results, nil
}

// filterFile is the on-disk shape of a filter.
type filterFile struct {
	Countries  []string `toml:"countries"`
	Tiers      []string `toml:"tiers"`
	MinPlayers int      `toml:"min_players"`
}

// ParseFilter decodes a TOML filter.
func ParseFilter(data []byte) (aggregate.Filter, error) {
	var ff filterFile
	if err := toml.Unmarshal(data, &ff); err != nil {
		return aggregate.Filter{}, fmt.Errorf("parse filter: %w", err)
	}
	return NewFilter(ff.Countries, ff.Tiers, ff.MinPlayers)
}

// NewFilter validates tier names and builds a filter.
func NewFilter(countries, tiers []string, minPlayers int) (aggregate.Filter, error) {
	if minPlayers < 0 {
		return aggregate.Filter{}, fmt.Errorf("min_players cannot be negative: %d", minPlayers)
	}
	f := aggregate.Filter{MinPlayers: minPlayers}
	for _, c := range countries {
		if c = strings.TrimSpace(c); c != "" {
			f.Countries = append(f.Countries, c)
		}
	}
	for _, t := range tiers {
		tier, ok := meta.ParseEventTier(t)
		if !ok {
			return aggregate.Filter{}, fmt.Errorf("unknown tier %q", t)
		}
		f.Tiers = append(f.Tiers, tier)
	}
	return f, nil
}

// LoadFilter reads a TOML filter file.
func LoadFilter(path string) (aggregate.Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return aggregate.Filter{}, fmt.Errorf("read filter: %w", err)
	}
	return ParseFilter(data)
}

// Builder computes views over a record source.
type Builder struct {
	Source  RecordSource
	Options aggregate.Options
	Logger  *slog.Logger

	// Debounce coalesces bursts of file events. Default 200ms.
	Debounce time.Duration
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Build loads the records, drops duplicates and computes the view.
func (b *Builder) Build(ctx context.Context, filter aggregate.Filter) (*aggregate.View, error) {
	records, err := b.Source.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	records = meta.DedupeRecords(records)
	view := aggregate.Compute(records, filter, b.Options)
	b.logger().Debug("Report built", "records", len(records), "matched", view.Total)
	return view, nil
}

// Watch builds a view from the filter file and rebuilds it whenever the
// file is written or replaced, until ctx is done. Each result, including
// load errors, is passed to onView.
func (b *Builder) Watch(ctx context.Context, path string, onView func(*aggregate.View, error)) (err error) {
	path, err = filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve filter path: %w", err)
	}

	rebuild := func() {
		filter, err := LoadFilter(path)
		if err != nil {
			onView(nil, err)
			return
		}
		onView(b.Build(ctx, filter))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch filter directory: %w", err)
	}

	rebuild()

	debounce := b.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.logger().Warn("Filter watcher error", "error", err)
		case <-timer.C:
			b.logger().Info("Filter changed, rebuilding report", "path", path)
			rebuild()
		}
	}
}
