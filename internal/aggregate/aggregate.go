// Package aggregate derives meta views from deck records: archetype
// frequency, the best converting archetype and per-zone card inclusion
// rates. Everything here is a pure function of its inputs.
package aggregate

import (
	"sort"
	"strings"

	"github.com/ramonehamilton/duelmeta/internal/meta"
)

// Filter selects the records a view is computed over. Empty sets match
// everything; all conditions must hold.
type Filter struct {
	Countries  []string         `toml:"countries" json:"countries,omitempty"`
	Tiers      []meta.EventTier `toml:"tiers" json:"tiers,omitempty"`
	MinPlayers int              `toml:"min_players" json:"min_players,omitempty"`
}

// Match reports whether r passes the filter. Countries compare
// case-insensitively.
func (f Filter) Match(r meta.DeckRecord) bool {
	if len(f.Countries) > 0 {
		ok := false
		for _, c := range f.Countries {
			if strings.EqualFold(strings.TrimSpace(c), r.Country) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Tiers) > 0 {
		ok := false
		for _, t := range f.Tiers {
			if t == r.Tier {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return r.Players >= f.MinPlayers
}

// Options tunes the view.
type Options struct {
	TopArchetypes int // Archetypes considered for the best converter
	TopCards      int // Cards reported per zone
	Winner        meta.WinnerMatcher
}

// DefaultOptions returns the standard view options.
func DefaultOptions() Options {
	return Options{
		TopArchetypes: 6,
		TopCards:      10,
		Winner:        meta.NewWinnerMatcher(nil),
	}
}

// ArchetypeCount is one row of the frequency ranking.
type ArchetypeCount struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Share float64 `json:"share"` // fraction of filtered records
}

// Converter is the archetype with the best win rate.
type Converter struct {
	Archetype string  `json:"archetype"`
	Wins      int     `json:"wins"`
	Count     int     `json:"count"`
	Rate      float64 `json:"rate"`
}

// CardRate is the inclusion rate of one card in one zone.
type CardRate struct {
	Name  string  `json:"name"`
	Decks int     `json:"decks"` // records containing the card
	Rate  float64 `json:"rate"`  // fraction of records with the zone populated
}

// ZoneTable holds the inclusion rates of one zone.
type ZoneTable struct {
	Decks int        `json:"decks"` // records with the zone populated
	Top   []CardRate `json:"top"`

	all map[string]CardRate
}

// Rate returns the inclusion rate of an exact card name, 0 when absent.
func (z *ZoneTable) Rate(name string) float64 {
	if z == nil {
		return 0
	}
	return z.all[name].Rate
}

// View is a computed aggregate.
type View struct {
	Filter        Filter                  `json:"filter"`
	Total         int                     `json:"total"`
	Archetypes    []ArchetypeCount        `json:"archetypes"`
	BestConverter *Converter              `json:"best_converter"` // nil when no top archetype has a win
	Zones         map[meta.Zone]*ZoneTable `json:"zones"`

	folded map[meta.Zone]map[string]string
}

// Compute builds the view of records that pass filter. records is not
// modified.
func Compute(records []meta.DeckRecord, filter Filter, opts Options) *View {
	if opts.TopArchetypes <= 0 {
		opts.TopArchetypes = DefaultOptions().TopArchetypes
	}
	if opts.TopCards <= 0 {
		opts.TopCards = DefaultOptions().TopCards
	}

	filtered := make([]meta.DeckRecord, 0, len(records))
	for _, r := range records {
		if filter.Match(r) {
			filtered = append(filtered, r)
		}
	}

	view := &View{
		Filter: filter,
		Total:  len(filtered),
		Zones:  make(map[meta.Zone]*ZoneTable, len(meta.Zones)),
		folded: make(map[meta.Zone]map[string]string, len(meta.Zones)),
	}
	view.Archetypes = rankArchetypes(filtered)
	view.BestConverter = bestConverter(filtered, view.Archetypes, opts)
	for _, zone := range meta.Zones {
		table, folded := zoneRates(filtered, zone, opts.TopCards)
		view.Zones[zone] = table
		view.folded[zone] = folded
	}
	return view
}

// rankArchetypes counts records per archetype, highest first. Ties keep
// the order in which archetypes were first seen.
func rankArchetypes(records []meta.DeckRecord) []ArchetypeCount {
	index := make(map[string]int)
	var counts []ArchetypeCount
	for _, r := range records {
		i, ok := index[r.Archetype]
		if !ok {
			i = len(counts)
			index[r.Archetype] = i
			counts = append(counts, ArchetypeCount{Name: r.Archetype})
		}
		counts[i].Count++
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	for i := range counts {
		counts[i].Share = float64(counts[i].Count) / float64(len(records))
	}
	return counts
}

// bestConverter picks the strictly highest win rate among the top ranked
// archetypes; the earlier ranked archetype wins a tie.
func bestConverter(records []meta.DeckRecord, ranked []ArchetypeCount, opts Options) *Converter {
	top := ranked
	if len(top) > opts.TopArchetypes {
		top = top[:opts.TopArchetypes]
	}

	wins := make(map[string]int, len(top))
	for _, r := range records {
		if opts.Winner.Matches(r.Placement) {
			wins[r.Archetype]++
		}
	}

	var best *Converter
	for _, a := range top {
		w := wins[a.Name]
		if w == 0 {
			continue
		}
		rate := float64(w) / float64(a.Count)
		if best == nil || rate > best.Rate {
			best = &Converter{Archetype: a.Name, Wins: w, Count: a.Count, Rate: rate}
		}
	}
	return best
}

// zoneRates computes inclusion rates over records that have the zone
// populated. A card counts once per record regardless of copies.
func zoneRates(records []meta.DeckRecord, zone meta.Zone, topN int) (*ZoneTable, map[string]string) {
	table := &ZoneTable{all: make(map[string]CardRate)}
	folded := make(map[string]string)

	var order []string
	decks := make(map[string]int)
	for _, r := range records {
		group := r.Group(zone)
		if len(group) == 0 {
			continue
		}
		table.Decks++

		seen := make(map[string]struct{}, len(group))
		for _, e := range group {
			if _, dup := seen[e.Name]; dup {
				continue
			}
			seen[e.Name] = struct{}{}
			if _, known := decks[e.Name]; !known {
				order = append(order, e.Name)
			}
			decks[e.Name]++
		}
	}

	rates := make([]CardRate, 0, len(order))
	for _, name := range order {
		cr := CardRate{Name: name, Decks: decks[name], Rate: float64(decks[name]) / float64(table.Decks)}
		rates = append(rates, cr)
		table.all[name] = cr
		if _, ok := folded[strings.ToLower(name)]; !ok {
			folded[strings.ToLower(name)] = name
		}
	}

	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].Rate > rates[j].Rate
	})
	if len(rates) > topN {
		rates = rates[:topN]
	}
	table.Top = rates
	return table, folded
}

// CardLookup is the inclusion of one card across all zones.
type CardLookup struct {
	Name  string  `json:"name"`
	Main  float64 `json:"main"`
	Side  float64 `json:"side"`
	Extra float64 `json:"extra"`
}

// Lookup returns the inclusion rates of a card, matching the name
// case-insensitively. Unknown cards report 0 everywhere.
func (v *View) Lookup(name string) CardLookup {
	key := strings.ToLower(strings.TrimSpace(name))
	out := CardLookup{Name: strings.TrimSpace(name)}

	rate := func(zone meta.Zone) float64 {
		exact, ok := v.folded[zone][key]
		if !ok {
			return 0
		}
		out.Name = exact
		return v.Zones[zone].Rate(exact)
	}
	out.Main = rate(meta.ZoneMain)
	out.Side = rate(meta.ZoneSide)
	out.Extra = rate(meta.ZoneExtra)
	return out
}

// Archetype returns the ranking entry for name.
func (v *View) Archetype(name string) (ArchetypeCount, bool) {
	for _, a := range v.Archetypes {
		if a.Name == name {
			return a, true
		}
	}
	return ArchetypeCount{}, false
}
