package meta

import (
	"strings"
	"testing"
	"time"

	"github.com/ramonehamilton/duelmeta/internal/stats"
)

func TestPlacement_Rank(t *testing.T) {
	tests := []struct {
		label string
		want  float64
		ok    bool
	}{
		{"Winner", 1, true},
		{"Finalist", 2, true},
		{"1st", 1, true},
		{"3.5", 3.5, true},
		{"Top 8", 8, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"0", 0, false},
	}

	for _, tt := range tests {
		got, ok := Placement(tt.label).Rank()
		if got != tt.want || ok != tt.ok {
			t.Errorf("Rank(%q) = %v, %v, want %v, %v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatRank(t *testing.T) {
	tests := map[float64]string{
		-1:  UnknownPlacement,
		1:   "Winner",
		2:   "Finalist",
		3.5: "Top 4",
		8:   "Top 8",
		9:   "Top 16",
		64:  "Top 64",
		65:  "Rank 65",
	}
	for in, want := range tests {
		if got := FormatRank(in); got != want {
			t.Errorf("FormatRank(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestWinnerMatcher(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		m := NewWinnerMatcher(nil)
		for _, label := range []string{"Winner", "1st Place", "WINNER"} {
			if !m.Matches(label) {
				t.Errorf("expected %q to match", label)
			}
		}
		for _, label := range []string{"Top 4", "Finalist", "N/A"} {
			if m.Matches(label) {
				t.Errorf("expected %q not to match", label)
			}
		}
	})

	t.Run("custom patterns", func(t *testing.T) {
		m := NewWinnerMatcher([]string{" Champion ", ""})
		if !m.Matches("Champion") {
			t.Error("expected custom pattern to match")
		}
		if m.Matches("Winner") {
			t.Error("expected default pattern to be replaced")
		}
	})
}

func TestAnalyzeCoverage(t *testing.T) {
	t.Run("full top cut", func(t *testing.T) {
		placements := []Placement{"Winner", "Finalist", "3.5", "Top 4", "Top 8", "8", "5", "Top 8", "Top 16"}
		c := AnalyzeCoverage(placements)
		if !c.Complete {
			t.Fatalf("expected complete coverage, got %v", c.Missing)
		}
		if c.String() != "Full top cut data available" {
			t.Errorf("unexpected summary %q", c.String())
		}
	})

	t.Run("missing entries", func(t *testing.T) {
		c := AnalyzeCoverage([]Placement{"Finalist", "Top 4", "Top 8"})
		want := "Missing data: Winner, Top 4 (1 missing), Top 8 (3 missing)"
		if c.String() != want {
			t.Errorf("summary = %q, want %q", c.String(), want)
		}
	})
}

func TestGroupCards(t *testing.T) {
	raw := []RawCard{
		{Name: "Ash Blossom", Amount: 1},
		{Name: "Maxx C", Amount: 1, Image: "maxx.jpg"},
		{Name: " Ash Blossom ", Amount: 2, Image: "ash.jpg"},
		{Name: "", Amount: 3},
		{Name: "Ghost Belle", Amount: 0},
		{Name: "Maxx C", Amount: 1, Image: "other.jpg"},
		{Name: "Called by the Grave", Amount: 2},
	}

	group := GroupCards(raw)
	if len(group) != 3 {
		t.Fatalf("expected 3 entries, got %+v", group)
	}

	want := []CardEntry{
		{Name: "Ash Blossom", Copies: 3, Image: "ash.jpg"},
		{Name: "Maxx C", Copies: 2, Image: "maxx.jpg"},
		{Name: "Called by the Grave", Copies: 2},
	}
	for i, w := range want {
		if group[i] != w {
			t.Errorf("entry %d = %+v, want %+v", i, group[i], w)
		}
	}
	if group.TotalCopies() != 7 {
		t.Errorf("expected 7 copies, got %d", group.TotalCopies())
	}
	if !group.Contains("Maxx C") || group.Contains("Ghost Belle") {
		t.Error("unexpected Contains result")
	}
}

func TestRowFilter_Accept(t *testing.T) {
	now := time.Date(2025, time.December, 20, 23, 30, 0, 0, time.UTC)
	filter := RowFilter{
		Policy: DefaultDiscoveryPolicy(),
		Window: stats.LookbackRangeFrom(now, 60),
	}
	row := func(date, size string) ListingRow {
		return ListingRow{
			URL:      "https://example.test/tournament/1",
			Text:     strings.Join([]string{"Some Regional", date, "USA", size}, "\t"),
			SizeCell: size,
		}
	}

	tests := []struct {
		name    string
		row     ListingRow
		accept  bool
		players int
	}{
		{"inside window", row("Dec 1, 2025", "150"), true, 150},
		{"exactly lookback days ago", row("Oct 21, 2025", "150"), true, 150},
		{"one day past lookback", row("Oct 20, 2025", "150"), false, 0},
		{"reference day", row("Dec 20, 2025", "150"), true, 150},
		{"dated after today", row("Dec 21, 2025", "150"), true, 150},
		{"next year", row("Jan 10, 2026", "150"), true, 150},
		{"too few players", row("Dec 1, 2025", "79"), false, 0},
		{"minimum players", row("Dec 1, 2025", "80"), true, 80},
		{"size with text", row("Dec 1, 2025", "1,024 players"), true, 1024},
		{"unknown size kept", row("Dec 1, 2025", "unknown"), true, 0},
		{"unparseable size dropped", row("Dec 1, 2025", "TBD"), false, 0},
		{"missing date dropped", row("soon", "150"), false, 0},
		{"excluded token", ListingRow{Text: "Speed Duel Open\tDec 1, 2025", SizeCell: "500"}, false, 0},
		{"excluded region case-insensitive", ListingRow{Text: "KOREA Regional\tDec 1, 2025", SizeCell: "500"}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := filter.Accept(tt.row)
			if ok != tt.accept {
				t.Fatalf("Accept() = %v, want %v", ok, tt.accept)
			}
			if ok && got.Players != tt.players {
				t.Errorf("players = %d, want %d", got.Players, tt.players)
			}
		})
	}
}

func TestClassifyEvent(t *testing.T) {
	tests := []struct {
		name string
		hint string
		want EventTier
	}{
		{"YCS Lille", "", TierPremier},
		{"North America WCQ", "", TierPremier},
		{"Remote Duel Championship", "", TierPremier},
		{"Guadalajara Regional", "", TierRegional},
		{"Spring Major", "", TierRegional},
		{"Guadalajara Regional", "Premier", TierPremier},
		{"Locals Cup", "Competitive", TierOther},
	}
	for _, tt := range tests {
		if got := ClassifyEvent(tt.name, tt.hint); got != tt.want {
			t.Errorf("ClassifyEvent(%q, %q) = %s, want %s", tt.name, tt.hint, got, tt.want)
		}
	}
}

func TestNewDeckRecord(t *testing.T) {
	ref := TournamentReference{URL: "https://example.test/t/1", Name: "YCS Lille", Players: 1200, Source: SourceYGOProDeck}

	t.Run("applies fallbacks", func(t *testing.T) {
		rec := NewDeckRecord(ref, "", ParticipantRow{Player: " Alice "}, nil)
		if rec.Archetype != UnknownArchetype {
			t.Errorf("unexpected archetype %q", rec.Archetype)
		}
		if rec.Placement != UnknownPlacement {
			t.Errorf("unexpected placement %q", rec.Placement)
		}
		if rec.Country != UnknownCountry || rec.Tier != TierOther {
			t.Errorf("unexpected country/tier %q %q", rec.Country, rec.Tier)
		}
		if rec.Event != "YCS Lille" || rec.Player != "Alice" {
			t.Errorf("unexpected event/player %q %q", rec.Event, rec.Player)
		}
		if rec.HasAnyCards() || rec.Main == nil {
			t.Error("expected empty non-nil zones")
		}
	})

	t.Run("carries decklist", func(t *testing.T) {
		row := ParticipantRow{Placement: "Winner", Archetype: "Snake-Eye", Decklist: &DecklistRef{URL: "https://example.test/deck/1"}}
		deck := &Decklist{Main: CardGroup{{Name: "Ash Blossom", Copies: 3}}}
		rec := NewDeckRecord(ref, "YCS Lille 2025", row, deck)
		if rec.Link != "https://example.test/deck/1" || rec.Event != "YCS Lille 2025" {
			t.Errorf("unexpected record %+v", rec)
		}
		if !rec.HasCards(ZoneMain) || rec.HasCards(ZoneSide) {
			t.Error("unexpected zone population")
		}
	})
}

func TestDedupeRecords(t *testing.T) {
	records := []DeckRecord{
		{Event: "YCS", Player: "Alice", Link: "l1", Placement: "Winner", Archetype: "A"},
		{Event: "ycs", Player: "ALICE", Link: "l1", Placement: "Winner", Archetype: "B"},
		{Event: "YCS", Player: "Alice", Link: "l2", Placement: "Winner"},
		{Event: "YCS", Player: "Bob", Link: "l1", Placement: "Top 4"},
	}

	got := DedupeRecords(records)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].Archetype != "A" {
		t.Error("expected first occurrence to win")
	}
}

func TestDedupeReferences(t *testing.T) {
	refs := []TournamentReference{
		{ID: "ev1", URL: "u1"},
		{ID: "ev1", URL: "u2"},
		{URL: "u3"},
		{URL: "u3", Name: "again"},
	}
	got := DedupeReferences(refs)
	if len(got) != 2 {
		t.Fatalf("expected 2 references, got %d", len(got))
	}
	if got[0].URL != "u1" || got[1].Name != "u3" || got[1].Country != UnknownCountry {
		t.Errorf("unexpected references %+v", got)
	}
}

func TestNewSource(t *testing.T) {
	for _, name := range SourceNames() {
		src, err := NewSource(name, nil)
		if err != nil {
			t.Fatalf("NewSource(%q): %v", name, err)
		}
		if src.Name() != name {
			t.Errorf("expected name %s, got %s", name, src.Name())
		}
	}

	if _, err := NewSource("duelingbook", nil); err == nil {
		t.Error("expected error for unknown source")
	}
}
