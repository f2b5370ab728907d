package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/batch"
	"github.com/ramonehamilton/duelmeta/internal/meta"
)

type staticSource struct {
	records []meta.DeckRecord
	err     error
}

func (s staticSource) ListRecords(context.Context) ([]meta.DeckRecord, error) {
	return s.records, s.err
}

func records() []meta.DeckRecord {
	return []meta.DeckRecord{
		{Event: "YCS Bologna", Player: "Alice", Placement: "Winner", Archetype: "Snake-Eye", Country: "Italy", Tier: meta.TierPremier, Players: 1400},
		{Event: "YCS Bologna", Player: "Alice", Placement: "Winner", Archetype: "Snake-Eye", Country: "Italy", Tier: meta.TierPremier, Players: 1400},
		{Event: "Regional Lyon", Player: "Bob", Placement: "Top 8", Archetype: "Yubel", Country: "France", Tier: meta.TierRegional, Players: 150},
		{Event: "Locals", Player: "Carl", Placement: "Top 4", Archetype: "Tenpai Dragon", Country: "France", Tier: meta.TierOther, Players: 20},
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter([]byte(`
countries = ["France", " "]
tiers = ["Regional", "premier"]
min_players = 100
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"France"}, f.Countries)
	assert.Equal(t, []meta.EventTier{meta.TierRegional, meta.TierPremier}, f.Tiers)
	assert.Equal(t, 100, f.MinPlayers)

	_, err = ParseFilter([]byte(`tiers = ["worlds"]`))
	assert.Error(t, err)

	_, err = ParseFilter([]byte(`min_players = -3`))
	assert.Error(t, err)
}

func TestBuilder_Build(t *testing.T) {
	b := &Builder{Source: staticSource{records: records()}, Options: aggregate.DefaultOptions()}

	view, err := b.Build(t.Context(), aggregate.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, view.Total, "duplicate record dropped")

	view, err = b.Build(t.Context(), aggregate.Filter{Countries: []string{"france"}, MinPlayers: 100})
	require.NoError(t, err)
	require.Equal(t, 1, view.Total)
	assert.Equal(t, "Yubel", view.Archetypes[0].Name)

	_, err = (&Builder{Source: staticSource{err: errors.New("boom")}}).Build(t.Context(), aggregate.Filter{})
	assert.Error(t, err)
}

func TestCheckpointRecords(t *testing.T) {
	store := batch.NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))

	got, err := CheckpointRecords{Store: store}.ListRecords(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.Save(t.Context(), batch.BatchState{RunID: "r", Results: records()}))
	got, err = CheckpointRecords{Store: store}.ListRecords(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestBuilder_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filter.toml")
	require.NoError(t, os.WriteFile(path, []byte(`countries = ["Italy"]`), 0o644))

	b := &Builder{
		Source:   staticSource{records: records()},
		Options:  aggregate.DefaultOptions(),
		Debounce: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	views := make(chan *aggregate.View, 8)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, path, func(v *aggregate.View, err error) {
			if err == nil {
				views <- v
			}
		})
	}()

	first := <-views
	assert.Equal(t, "Snake-Eye", first.Archetypes[0].Name)

	require.NoError(t, os.WriteFile(path, []byte(`countries = ["France"]`+"\n"+`min_players = 100`), 0o644))

	select {
	case second := <-views:
		require.Equal(t, 1, second.Total)
		assert.Equal(t, "Yubel", second.Archetypes[0].Name)
	case <-ctx.Done():
		t.Fatal("no rebuild after filter change")
	}

	cancel()
	assert.NoError(t, <-done)
}
