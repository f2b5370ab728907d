package aggregate

import (
	"math"
	"reflect"
	"testing"

	"github.com/ramonehamilton/duelmeta/internal/meta"
)

func rec(archetype, place string, main ...string) meta.DeckRecord {
	r := meta.DeckRecord{
		Placement: place,
		Archetype: archetype,
		Country:   "Germany",
		Tier:      meta.TierRegional,
		Players:   64,
		Main:      meta.CardGroup{},
		Side:      meta.CardGroup{},
		Extra:     meta.CardGroup{},
	}
	for _, name := range main {
		r.Main = append(r.Main, meta.CardEntry{Name: name, Copies: 3})
	}
	return r
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompute_ArchetypeRanking(t *testing.T) {
	records := []meta.DeckRecord{
		rec("Snake-Eye", "Top 8"),
		rec("Tenpai", "Top 8"),
		rec("Snake-Eye", "Top 4"),
		rec("Yubel", "Top 8"),
		rec("Tenpai", "Top 16"),
		rec("Snake-Eye", "Top 16"),
	}

	view := Compute(records, Filter{}, DefaultOptions())

	if view.Total != 6 {
		t.Fatalf("Total = %d, want 6", view.Total)
	}
	want := []string{"Snake-Eye", "Tenpai", "Yubel"}
	var got []string
	for _, a := range view.Archetypes {
		got = append(got, a.Name)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ranking = %v, want %v", got, want)
	}
	if !approx(view.Archetypes[0].Share, 0.5) {
		t.Errorf("Snake-Eye share = %v, want 0.5", view.Archetypes[0].Share)
	}
}

func TestCompute_BestConverter(t *testing.T) {
	// A: 4 decks 1 win (25%), B: 3 decks 0 wins, C: 2 decks 1 win (50%).
	records := []meta.DeckRecord{
		rec("A", "Winner"), rec("A", "Top 8"), rec("A", "Top 8"), rec("A", "Top 16"),
		rec("B", "Top 4"), rec("B", "Top 8"), rec("B", "Finalist"),
		rec("C", "1st Place"), rec("C", "Top 8"),
	}

	view := Compute(records, Filter{}, DefaultOptions())

	if view.BestConverter == nil {
		t.Fatal("BestConverter = nil, want C")
	}
	got := *view.BestConverter
	want := Converter{Archetype: "C", Wins: 1, Count: 2, Rate: 0.5}
	if got != want {
		t.Errorf("BestConverter = %+v, want %+v", got, want)
	}

	t.Run("no wins yields nil", func(t *testing.T) {
		view := Compute([]meta.DeckRecord{rec("A", "Top 8"), rec("B", "Top 4")}, Filter{}, DefaultOptions())
		if view.BestConverter != nil {
			t.Errorf("BestConverter = %+v, want nil", view.BestConverter)
		}
	})

	t.Run("only top archetypes compete", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TopArchetypes = 1
		view := Compute(records, Filter{}, opts)
		if view.BestConverter == nil || view.BestConverter.Archetype != "A" {
			t.Errorf("BestConverter = %+v, want A", view.BestConverter)
		}
	})

	t.Run("custom winner patterns", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Winner = meta.NewWinnerMatcher([]string{"finalist"})
		view := Compute(records, Filter{}, opts)
		if view.BestConverter == nil || view.BestConverter.Archetype != "B" {
			t.Errorf("BestConverter = %+v, want B", view.BestConverter)
		}
	})
}

func TestCompute_ZoneRates(t *testing.T) {
	records := []meta.DeckRecord{
		rec("A", "Top 8", "Ash Blossom & Joyous Spring", "Maxx \"C\""),
		rec("A", "Top 8", "Ash Blossom & Joyous Spring"),
		rec("B", "Top 8", "Ash Blossom & Joyous Spring", "Called by the Grave"),
		rec("B", "Top 8", "Triple Tactics Talent"),
		rec("B", "Top 8"), // no main deck, not part of the denominator
	}

	view := Compute(records, Filter{}, DefaultOptions())
	main := view.Zones[meta.ZoneMain]

	if main.Decks != 4 {
		t.Fatalf("main Decks = %d, want 4", main.Decks)
	}
	if main.Top[0].Name != "Ash Blossom & Joyous Spring" || !approx(main.Top[0].Rate, 0.75) {
		t.Errorf("top main card = %+v, want Ash Blossom at 0.75", main.Top[0])
	}
	if !approx(main.Rate("Maxx \"C\""), 0.25) {
		t.Errorf("Maxx rate = %v, want 0.25", main.Rate("Maxx \"C\""))
	}
	if view.Zones[meta.ZoneSide].Decks != 0 || len(view.Zones[meta.ZoneSide].Top) != 0 {
		t.Errorf("side zone = %+v, want empty", view.Zones[meta.ZoneSide])
	}
}

func TestCompute_CountsCardOncePerDeck(t *testing.T) {
	r := rec("A", "Top 8")
	r.Main = meta.CardGroup{{Name: "Pot of Prosperity", Copies: 3}, {Name: "Pot of Prosperity", Copies: 1}}

	view := Compute([]meta.DeckRecord{r}, Filter{}, DefaultOptions())

	if got := view.Zones[meta.ZoneMain].Top[0].Decks; got != 1 {
		t.Errorf("Decks = %d, want 1", got)
	}
}

func TestCompute_TopCardsLimit(t *testing.T) {
	var names []string
	for i := 0; i < 15; i++ {
		names = append(names, string(rune('A'+i)))
	}
	opts := DefaultOptions()
	opts.TopCards = 5

	view := Compute([]meta.DeckRecord{rec("A", "Top 8", names...)}, Filter{}, opts)

	if got := len(view.Zones[meta.ZoneMain].Top); got != 5 {
		t.Errorf("len(Top) = %d, want 5", got)
	}
}

func TestCompute_DoesNotModifyInput(t *testing.T) {
	records := []meta.DeckRecord{
		rec("B", "Winner", "X"),
		rec("A", "Top 8", "Y"),
		rec("A", "Top 8", "X"),
	}
	before := make([]meta.DeckRecord, len(records))
	copy(before, records)

	first := Compute(records, Filter{}, DefaultOptions())
	second := Compute(records, Filter{}, DefaultOptions())

	if !reflect.DeepEqual(records, before) {
		t.Error("Compute modified its input")
	}
	if !reflect.DeepEqual(first.Archetypes, second.Archetypes) || !reflect.DeepEqual(first.BestConverter, second.BestConverter) {
		t.Error("Compute is not deterministic")
	}
}

func TestFilter_Match(t *testing.T) {
	r := rec("A", "Top 8")

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"country match ignores case", Filter{Countries: []string{"germany"}}, true},
		{"country mismatch", Filter{Countries: []string{"Italy"}}, false},
		{"tier match", Filter{Tiers: []meta.EventTier{meta.TierPremier, meta.TierRegional}}, true},
		{"tier mismatch", Filter{Tiers: []meta.EventTier{meta.TierPremier}}, false},
		{"min players boundary", Filter{MinPlayers: 64}, true},
		{"min players above", Filter{MinPlayers: 65}, false},
		{"all conditions", Filter{Countries: []string{"Germany"}, Tiers: []meta.EventTier{meta.TierRegional}, MinPlayers: 32}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(r); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompute_FilterApplied(t *testing.T) {
	premier := rec("A", "Winner", "X")
	premier.Tier = meta.TierPremier
	regional := rec("B", "Top 8", "Y")

	view := Compute([]meta.DeckRecord{premier, regional}, Filter{Tiers: []meta.EventTier{meta.TierPremier}}, DefaultOptions())

	if view.Total != 1 || view.Archetypes[0].Name != "A" {
		t.Errorf("view = %d records %+v, want only A", view.Total, view.Archetypes)
	}
	if view.Zones[meta.ZoneMain].Rate("Y") != 0 {
		t.Error("filtered out card still counted")
	}
}

func TestView_Lookup(t *testing.T) {
	a := rec("A", "Top 8", "Ash Blossom & Joyous Spring")
	a.Side = meta.CardGroup{{Name: "Ash Blossom & Joyous Spring", Copies: 1}, {Name: "Droll & Lock Bird", Copies: 2}}
	a.Extra = meta.CardGroup{{Name: "Accesscode Talker", Copies: 1}}
	b := rec("B", "Top 8", "Maxx \"C\"")
	b.Side = meta.CardGroup{{Name: "Droll & Lock Bird", Copies: 3}}

	view := Compute([]meta.DeckRecord{a, b}, Filter{}, DefaultOptions())

	got := view.Lookup("  ash blossom & joyous spring ")
	want := CardLookup{Name: "Ash Blossom & Joyous Spring", Main: 0.5, Side: 0.5, Extra: 0}
	if got != want {
		t.Errorf("Lookup = %+v, want %+v", got, want)
	}

	missing := view.Lookup("Nibiru, the Primal Being")
	if missing.Main != 0 || missing.Side != 0 || missing.Extra != 0 {
		t.Errorf("unknown card = %+v, want zeros", missing)
	}
}

func TestCompute_Empty(t *testing.T) {
	view := Compute(nil, Filter{}, DefaultOptions())

	if view.Total != 0 || len(view.Archetypes) != 0 || view.BestConverter != nil {
		t.Errorf("view = %+v, want empty", view)
	}
	for _, zone := range meta.Zones {
		if view.Zones[zone] == nil {
			t.Errorf("zone %s missing", zone)
		}
	}
}
