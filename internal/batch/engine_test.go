package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/duelmeta/internal/events"
	"github.com/ramonehamilton/duelmeta/internal/meta"
	"github.com/ramonehamilton/duelmeta/internal/metrics"
)

// fakeSource serves canned tables and decklists.
type fakeSource struct {
	workers     int
	refs        []meta.TournamentReference
	discoverErr error
	tables      map[string]*meta.ParticipantTable
	decks       map[string]*meta.Decklist
	deckErrs    map[string]error
	delay       time.Duration

	onDiscover     func()
	onParticipants func(ref meta.TournamentReference)

	discoverCalls atomic.Int32
	inflight      atomic.Int32
	maxInflight   atomic.Int32
	mu            sync.Mutex
	fetched       []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Workers() int { return f.workers }

func (f *fakeSource) Discover(ctx context.Context, opts meta.DiscoverOptions) ([]meta.TournamentReference, error) {
	f.discoverCalls.Add(1)
	if f.onDiscover != nil {
		f.onDiscover()
	}
	if f.discoverErr != nil {
		return nil, f.discoverErr
	}
	return f.refs, nil
}

func (f *fakeSource) FetchParticipants(ctx context.Context, ref meta.TournamentReference) (*meta.ParticipantTable, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, ref.URL)
	f.mu.Unlock()
	if f.onParticipants != nil {
		f.onParticipants(ref)
	}
	table, ok := f.tables[ref.URL]
	if !ok {
		return nil, &meta.FetchError{Op: "fetch participants", URL: ref.URL, Kind: meta.KindUnreachable, StatusCode: 503}
	}
	return table, nil
}

func (f *fakeSource) FetchDecklist(ctx context.Context, ref meta.DecklistRef) (*meta.Decklist, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err, ok := f.deckErrs[ref.URL]; ok {
		return nil, err
	}
	if deck, ok := f.decks[ref.URL]; ok {
		return deck, nil
	}
	return nil, &meta.FetchError{Op: "fetch decklist", URL: ref.URL, Kind: meta.KindEmpty}
}

func (f *fakeSource) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func row(place, player, archetype, link string) meta.ParticipantRow {
	r := meta.ParticipantRow{Placement: place, Player: player, Archetype: archetype}
	if link != "" {
		r.Decklist = &meta.DecklistRef{URL: link}
	}
	return r
}

func deck(cards ...string) *meta.Decklist {
	d := &meta.Decklist{}
	for _, c := range cards {
		d.Main = append(d.Main, meta.CardEntry{Name: c, Copies: 3})
	}
	return d
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		workers: 2,
		refs: []meta.TournamentReference{
			{URL: "t1", Name: "YCS One", Players: 900},
			{URL: "t2", Name: "Broken Regional", Players: 120},
			{URL: "t3", Name: "Third Regional", Players: 200},
		},
		tables: map[string]*meta.ParticipantTable{
			"t1": {
				EventName: "YCS One",
				Country:   "France",
				Rows: []meta.ParticipantRow{
					row("Winner", "Alice", "Snake-Eye", "d1"),
					row("Finalist", "Bob", "Yubel", "d2"),
					row("Top 4", "Carol", "", "d3"),
					row("Top 4", "Dan", "Tenpai", ""),
				},
			},
			"t3": {
				Rows: []meta.ParticipantRow{
					row("Winner", "Erin", "Tenpai", "d4"),
					row("Top 8", "Finn", "Yubel", "d5"),
				},
			},
		},
		decks: map[string]*meta.Decklist{
			"d1": deck("Ash Blossom", "Snake-Eye Ash"),
			"d2": deck("Yubel"),
			"d4": deck("Sangen Kaimen"),
		},
		deckErrs: map[string]error{
			"d5": &meta.FetchError{Op: "fetch decklist", URL: "d5", Kind: meta.KindUnreachable, StatusCode: 500},
		},
	}
}

func newTestEngine(t *testing.T, src meta.Source, store Store) *Engine {
	t.Helper()
	config := DefaultEngineConfig()
	config.Source = src
	config.Store = store
	config.YieldDelay = 0
	config.Metrics = metrics.NewRunMetrics()
	engine, err := NewEngine(config)
	require.NoError(t, err)
	return engine
}

func TestStateTransitions(t *testing.T) {
	legal := [][2]State{
		{StateIdle, StateDiscovering},
		{StateDiscovering, StateDraining},
		{StateDiscovering, StateIdle},
		{StateDraining, StateFinalizing},
		{StateFinalizing, StateIdle},
		{StateDraining, StateCancelled},
		{StateFinalizing, StateCancelled},
		{StateCancelled, StateIdle},
		{StateIdle, StateDraining},
	}
	for _, tr := range legal {
		assert.True(t, tr[0].CanTransition(tr[1]), "%s -> %s", tr[0], tr[1])
	}

	illegal := [][2]State{
		{StateIdle, StateCancelled},
		{StateDiscovering, StateCancelled},
		{StateCancelled, StateDraining},
		{StateFinalizing, StateDraining},
	}
	for _, tr := range illegal {
		err := tr[0].checkTransition(tr[1])
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tr[0], tr[1])
	}
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine(nil)
	assert.Error(t, err)

	config := DefaultEngineConfig()
	config.Source = newFakeSource()
	_, err = NewEngine(config)
	assert.Error(t, err)
}

func TestEngine_WithoutSource(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, nil, store)

	_, err := engine.Start(ctx)
	assert.ErrorIs(t, err, ErrNoSource)
	assert.ErrorIs(t, engine.Discover(ctx), ErrNoSource)
	assert.Equal(t, StateIdle, engine.State())

	t.Run("cancel clears a queued run", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, BatchState{
			RunID: "queued",
			Queue: []meta.TournamentReference{{URL: "t1"}},
			Total: 1,
		}))
		require.NoError(t, engine.Cancel(ctx))
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})

	t.Run("clean removes a finished run", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, BatchState{RunID: "done", Total: 1}))
		require.NoError(t, engine.Clean(ctx))
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.json")
	store := NewFileStore(path)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoCheckpoint)

	state := BatchState{
		RunID:     "run-1",
		Source:    "fake",
		StartedAt: "2025-12-20T10:00:00Z",
		Queue: []meta.TournamentReference{
			{URL: "b", Name: "Second", Date: "2025-12-14", Tier: meta.TierPremier},
			{URL: "a", Name: "First", Date: "2025-12-01"},
		},
		Results: []meta.DeckRecord{{
			Placement: "Winner", Player: "Alice", Archetype: "Snake-Eye", Event: "YCS",
			Main: meta.CardGroup{{Name: "Ash Blossom", Copies: 3}}, Side: meta.CardGroup{}, Extra: meta.CardGroup{},
		}},
		Logs:  []string{"one", "two"},
		Total: 3,
	}
	require.NoError(t, store.Save(ctx, state))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
	assert.Equal(t, 1, loaded.Processed())
	assert.InDelta(t, 1.0/3.0, loaded.Progress(), 1e-9)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"queue"`)
	assert.Contains(t, string(raw), `"date": "2025-12-14"`)

	id, err := store.RunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
	_, err = store.RunID(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestFileStore_CorruptCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCheckpoint)
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, src, store)

	var states []string
	var units []events.UnitProcessedEvent
	dispatcher := events.NewEventDispatcher(nil)
	dispatcher.Register(&events.FuncObserver{Name: "test", Fn: func(e events.Event) error {
		if s, ok := events.GetTypedData[events.StateChangedEvent](e); ok {
			states = append(states, s.To)
		}
		if u, ok := events.GetTypedData[events.UnitProcessedEvent](e); ok {
			units = append(units, u)
		}
		return nil
	}})
	engine.config.Dispatcher = dispatcher

	final, err := engine.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StateIdle, engine.State())
	assert.Equal(t, []string{"DISCOVERING", "DRAINING", "FINALIZING", "IDLE"}, states)
	assert.Equal(t, []string{"t1", "t2", "t3"}, src.fetchedURLs(), "units drain in discovery order")
	assert.Empty(t, final.Queue)
	assert.Equal(t, 3, final.Total)
	assert.NotEmpty(t, final.RunID)

	// t1: d1, d2 fetched; d3 empty keeps metadata; Dan has no link.
	// t2: participant fetch fails. t3: d4 fetched, d5 unreachable.
	require.Len(t, final.Results, 4)
	byPlayer := map[string]meta.DeckRecord{}
	for _, r := range final.Results {
		byPlayer[r.Player] = r
	}
	assert.Equal(t, "France", byPlayer["Alice"].Country)
	assert.Equal(t, "Snake-Eye", byPlayer["Alice"].Archetype)
	assert.True(t, byPlayer["Alice"].HasCards(meta.ZoneMain))
	assert.Equal(t, meta.UnknownArchetype, byPlayer["Carol"].Archetype)
	assert.False(t, byPlayer["Carol"].HasAnyCards())
	assert.Equal(t, "Third Regional", byPlayer["Erin"].Event, "event falls back to reference name")
	assert.Equal(t, meta.UnknownCountry, byPlayer["Erin"].Country)
	assert.NotContains(t, byPlayer, "Finn")
	assert.NotContains(t, byPlayer, "Dan")

	assert.Equal(t, "Discovery completed: 3 tournaments", final.Logs[0])
	assert.Contains(t, final.Logs, "Processed YCS One: 3 decks")
	assert.Contains(t, final.Logs, "No cards extracted: Carol (d3)")
	assert.Contains(t, final.Logs, "Processed Third Regional: 1 decks (1 skipped)")
	assert.Equal(t, "Run complete: 4 records from 3 tournaments", final.Logs[len(final.Logs)-1])
	assert.True(t, hasError(final.Logs), "failed unit is logged")

	require.Len(t, units, 3)
	assert.True(t, units[1].Failed)
	assert.Equal(t, 3, units[2].Processed)

	stats := engine.config.Metrics.GetStats()
	assert.Equal(t, uint64(3), stats.UnitsProcessed)
	assert.Equal(t, uint64(1), stats.UnitsFailed)
	assert.Equal(t, uint64(1), stats.EmptyDecklists)

	// The checkpoint is kept until the completion is acknowledged.
	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, final.Logs, stored.Logs)

	require.NoError(t, engine.Clean(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestEngine_PersistsAfterEveryUnit(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, src, store)

	resumed, err := engine.Start(ctx)
	require.NoError(t, err)
	assert.False(t, resumed)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, stored.Queue, 3, "discovery persists before any unit")

	for want := 2; want >= 0; want-- {
		done, err := engine.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, want == 0, done)

		stored, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, stored.Queue, want)
		assert.Equal(t, engine.Snapshot(), stored)
	}
}

func TestEngine_ResumeSkipsDiscovery(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))

	checkpoint := BatchState{
		RunID:   "earlier",
		Source:  "fake",
		Queue:   []meta.TournamentReference{{URL: "t3", Name: "Third Regional"}},
		Results: []meta.DeckRecord{{Placement: "Winner", Player: "Zed", Archetype: "Kashtira"}},
		Logs:    []string{"Discovery completed: 2 tournaments"},
		Total:   2,
	}
	require.NoError(t, store.Save(ctx, checkpoint))

	engine := newTestEngine(t, src, store)
	resumed, err := engine.Start(ctx)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, StateDraining, engine.State())

	require.NoError(t, engine.Drain(ctx))
	require.NoError(t, engine.Finalize(ctx))

	assert.Equal(t, int32(0), src.discoverCalls.Load())
	assert.Equal(t, []string{"t3"}, src.fetchedURLs())

	final := engine.Snapshot()
	assert.Equal(t, "earlier", final.RunID)
	assert.Len(t, final.Results, 2)
	assert.Equal(t, "Zed", final.Results[0].Player)
}

func TestEngine_ResumeEmptyQueueFinalizes(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	require.NoError(t, store.Save(ctx, BatchState{RunID: "done", Total: 1, Logs: []string{}}))

	engine := newTestEngine(t, newFakeSource(), store)
	resumed, err := engine.Start(ctx)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, StateFinalizing, engine.State())

	final, err := engine.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunActive)
	assert.Equal(t, BatchState{}, final)

	require.NoError(t, engine.Finalize(ctx))
	assert.Equal(t, StateIdle, engine.State())
}

func TestEngine_CancelClearsCheckpoint(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, src, store)

	_, err := engine.Start(ctx)
	require.NoError(t, err)
	_, err = engine.Step(ctx)
	require.NoError(t, err)

	require.NoError(t, engine.Cancel(ctx))
	assert.Equal(t, StateIdle, engine.State())
	assert.True(t, engine.Snapshot().Empty())

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	// A fresh engine finds nothing to resume and discovers again.
	fresh := newTestEngine(t, src, store)
	resumed, err := fresh.Start(ctx)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, int32(2), src.discoverCalls.Load())
	assert.Equal(t, 3, len(fresh.Snapshot().Queue))
}

func TestEngine_CancelDuringDrain(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, src, store)

	src.onParticipants = func(ref meta.TournamentReference) {
		if ref.URL == "t1" {
			require.NoError(t, engine.Cancel(ctx))
		}
	}

	_, err := engine.Run(ctx)
	require.ErrorIs(t, err, ErrCancelled)

	assert.Equal(t, []string{"t1"}, src.fetchedURLs(), "cancel takes effect at the unit boundary")
	assert.Equal(t, StateIdle, engine.State())
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestEngine_CancelDuringLastUnit(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, src, store)

	src.onParticipants = func(ref meta.TournamentReference) {
		if ref.URL == "t3" {
			assert.NoError(t, engine.Cancel(ctx))
		}
	}

	_, err := engine.Run(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateIdle, engine.State())
	assert.True(t, engine.Snapshot().Empty())
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	// The request was consumed; the next run completes.
	src.onParticipants = nil
	final, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, final.Queue)
	assert.Equal(t, int32(2), src.discoverCalls.Load())
}

func TestEngine_CancelDuringDiscovery(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, src, store)

	src.onDiscover = func() {
		assert.NoError(t, engine.Cancel(ctx))
	}

	_, err := engine.Run(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, src.fetchedURLs(), "no unit runs after the request")
	assert.Equal(t, StateIdle, engine.State())
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestEngine_CheckpointRemovedElsewhere(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted checkpoint stops the run", func(t *testing.T) {
		src := newFakeSource()
		path := filepath.Join(t.TempDir(), "checkpoint.json")
		engine := newTestEngine(t, src, NewFileStore(path))

		// A second process sharing the checkpoint file.
		other := newTestEngine(t, nil, NewFileStore(path))
		src.onParticipants = func(ref meta.TournamentReference) {
			if ref.URL == "t1" {
				assert.NoError(t, other.Cancel(ctx))
			}
		}

		_, err := engine.Run(ctx)
		require.ErrorIs(t, err, ErrCancelled)
		assert.Equal(t, []string{"t1"}, src.fetchedURLs())
		assert.Equal(t, StateIdle, engine.State())
		assert.True(t, engine.Snapshot().Empty())

		_, err = NewFileStore(path).Load(ctx)
		assert.ErrorIs(t, err, ErrNoCheckpoint, "in-flight unit must not recreate the checkpoint")
	})

	t.Run("replaced checkpoint is left alone", func(t *testing.T) {
		src := newFakeSource()
		store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
		engine := newTestEngine(t, src, store)

		replacement := BatchState{RunID: "newer", Queue: []meta.TournamentReference{{URL: "x"}}, Total: 1}
		src.onParticipants = func(ref meta.TournamentReference) {
			if ref.URL == "t2" {
				assert.NoError(t, store.Save(ctx, replacement))
			}
		}

		_, err := engine.Run(ctx)
		require.ErrorIs(t, err, ErrCancelled)
		assert.Equal(t, []string{"t1", "t2"}, src.fetchedURLs())

		stored, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "newer", stored.RunID)
		assert.Len(t, stored.Queue, 1)
	})

	t.Run("removed before finalize", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
		require.NoError(t, store.Save(ctx, BatchState{RunID: "done", Total: 1, Logs: []string{}}))

		engine := newTestEngine(t, newFakeSource(), store)
		_, err := engine.Start(ctx)
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx))

		require.ErrorIs(t, engine.Finalize(ctx), ErrCancelled)
		assert.Equal(t, StateIdle, engine.State())
		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})
}

func TestEngine_PauseKeepsCheckpoint(t *testing.T) {
	src := newFakeSource()
	store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	engine := newTestEngine(t, src, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.onParticipants = func(ref meta.TournamentReference) {
		if ref.URL == "t2" {
			cancel()
		}
	}

	_, err := engine.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, engine.State())

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored.Queue, 2, "interrupted unit stays queued")
	assert.Equal(t, "t2", stored.Queue[0].URL)
	assert.Len(t, stored.Results, 3)

	// Resuming picks up at the interrupted unit.
	src.onParticipants = nil
	resumedEngine := newTestEngine(t, src, store)
	final, err := resumedEngine.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, final.Results, 4)
	assert.Equal(t, int32(1), src.discoverCalls.Load())
}

func TestEngine_DiscoveryFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("error leaves engine idle without checkpoint", func(t *testing.T) {
		src := newFakeSource()
		src.discoverErr = &meta.DiscoveryError{Source: "fake", Err: errors.New("listing timeout")}
		store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
		engine := newTestEngine(t, src, store)

		_, err := engine.Run(ctx)
		var discErr *meta.DiscoveryError
		require.ErrorAs(t, err, &discErr)
		assert.Equal(t, StateIdle, engine.State())
		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})

	t.Run("empty result", func(t *testing.T) {
		src := newFakeSource()
		src.refs = nil
		store := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
		engine := newTestEngine(t, src, store)

		_, err := engine.Run(ctx)
		require.ErrorIs(t, err, ErrNoTournaments)
		assert.Equal(t, StateIdle, engine.State())
	})
}

func TestEngine_CleanWhileActive(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, newFakeSource(), NewFileStore(filepath.Join(t.TempDir(), "c.json")))

	_, err := engine.Start(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, engine.Clean(ctx), ErrRunActive)

	_, err = engine.Start(ctx)
	assert.ErrorIs(t, err, ErrRunActive)
}

func TestProcessOne_BoundedFanOut(t *testing.T) {
	src := &fakeSource{
		workers: 3,
		tables:  map[string]*meta.ParticipantTable{"big": {EventName: "Big Event"}},
		decks:   map[string]*meta.Decklist{},
		delay:   20 * time.Millisecond,
	}
	for i := 0; i < 12; i++ {
		link := fmt.Sprintf("deck-%d", i)
		src.tables["big"].Rows = append(src.tables["big"].Rows, row("Top 32", fmt.Sprintf("P%d", i), "Rogue", link))
		src.decks[link] = deck("Card")
	}

	engine := newTestEngine(t, src, NewFileStore(filepath.Join(t.TempDir(), "c.json")))
	records, logs := engine.ProcessOne(context.Background(), meta.TournamentReference{URL: "big", Name: "Big Event"})

	assert.Len(t, records, 12)
	assert.LessOrEqual(t, src.maxInflight.Load(), int32(3))
	assert.Greater(t, src.maxInflight.Load(), int32(1))
	assert.Equal(t, []string{"Processed Big Event: 12 decks"}, logs)
}

func TestProcessOne_CoverageLogged(t *testing.T) {
	coverage := meta.AnalyzeCoverage([]meta.Placement{"Winner"})
	src := &fakeSource{
		workers: 1,
		tables: map[string]*meta.ParticipantTable{"t": {
			EventName: "Api Event",
			Rows:      []meta.ParticipantRow{row("Winner", "Alice", "Maliss", "d")},
			Coverage:  &coverage,
		}},
		decks: map[string]*meta.Decklist{"d": deck("Card")},
	}

	engine := newTestEngine(t, src, NewFileStore(filepath.Join(t.TempDir(), "c.json")))
	_, logs := engine.ProcessOne(context.Background(), meta.TournamentReference{URL: "t"})

	require.Len(t, logs, 2)
	assert.Equal(t, "Api Event: Missing data: Finalist, Top 4 (2 missing), Top 8 (4 missing)", logs[0])
}

func TestProcessOne_InlineEmptyDecklist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "" {
			_, _ = w.Write([]byte(`[{"_id": "d1", "event": {"_id": "ev1", "name": "Monterrey Regional"}}]`))
			return
		}
		_, _ = w.Write([]byte(`[
			{"_id": "d1", "url": "/monterrey-regional/maliss/alice", "author": "Alice", "deckType": {"name": "Maliss"},
			 "tournamentPlacement": 1, "event": {"_id": "ev1", "name": "Monterrey Regional"},
			 "main": [{"amount": 3, "card": {"name": "Maliss <P> Dormouse"}}]},
			{"_id": "d2", "url": "/monterrey-regional/yubel/bob", "author": "Bob", "deckType": {"name": "Yubel"},
			 "tournamentPlacement": 2, "event": {"_id": "ev1", "name": "Monterrey Regional"},
			 "main": [], "extra": [], "side": []}
		]`))
	}))
	defer server.Close()

	config := meta.DefaultYugiohMetaConfig()
	config.BaseURL = server.URL
	config.RateLimitMs = 0
	config.RequestTimeout = 5 * time.Second
	src := meta.NewYugiohMeta(config, nil)

	engine := newTestEngine(t, src, NewFileStore(filepath.Join(t.TempDir(), "c.json")))
	records, logs := engine.ProcessOne(context.Background(), meta.TournamentReference{
		URL:  server.URL + "/top-decks/monterrey-regional/maliss/alice",
		Name: "monterrey-regional",
	})

	require.Len(t, records, 2, "empty decklist keeps its metadata")
	var emptyLines []string
	for _, l := range logs {
		if strings.HasPrefix(l, "No cards extracted:") {
			emptyLines = append(emptyLines, l)
		}
	}
	require.Len(t, emptyLines, 1)
	assert.Contains(t, emptyLines[0], "Bob")
	assert.Equal(t, uint64(1), engine.config.Metrics.GetStats().EmptyDecklists)
}
