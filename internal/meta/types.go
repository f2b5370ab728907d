// Package meta holds the canonical tournament data model and the source
// adapters that translate tournament sites into it.
package meta

import (
	"strings"
)

const (
	// UnknownArchetype is used when a source provides no deck type.
	UnknownArchetype = "Unknown Deck"

	// UnknownPlacement is used when a source provides no placement.
	UnknownPlacement = "N/A"

	// UnknownCountry is used when a tournament has no country or region.
	UnknownCountry = "Unknown"
)

// EventTier classifies a tournament.
type EventTier string

const (
	TierPremier  EventTier = "premier"
	TierRegional EventTier = "regional"
	TierOther    EventTier = "other"
)

// ParseEventTier maps a free-form tier name onto an EventTier.
func ParseEventTier(s string) (EventTier, bool) {
	switch EventTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPremier:
		return TierPremier, true
	case TierRegional:
		return TierRegional, true
	case TierOther:
		return TierOther, true
	}
	return "", false
}

// Zone identifies one of the three card lists of a decklist.
type Zone string

const (
	ZoneMain  Zone = "main"
	ZoneExtra Zone = "extra"
	ZoneSide  Zone = "side"
)

// Zones lists all zones in display order.
var Zones = []Zone{ZoneMain, ZoneSide, ZoneExtra}

// TournamentReference is one discovered event.
type TournamentReference struct {
	ID      string    `json:"id,omitempty"`
	URL     string    `json:"url"`
	Name    string    `json:"name"`
	Tier    EventTier `json:"tier"`
	Country string    `json:"country"`
	Players int       `json:"players"`          // 0 when unknown
	Date    string    `json:"date,omitempty"`   // ISO-8601 calendar date
	Source  string    `json:"source,omitempty"` // adapter name
}

// Key returns the identifier used for deduplication.
func (r TournamentReference) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.URL
}

// Normalize fills in the fallbacks for missing attributes.
func (r TournamentReference) Normalize() TournamentReference {
	if strings.TrimSpace(r.Country) == "" {
		r.Country = UnknownCountry
	}
	if r.Tier == "" {
		r.Tier = TierOther
	}
	if r.Name == "" {
		r.Name = r.URL
	}
	if r.Players < 0 {
		r.Players = 0
	}
	return r
}

// CardEntry is one card line within a zone.
type CardEntry struct {
	Name   string `json:"name"`
	Copies int    `json:"amount"`
	Image  string `json:"image,omitempty"`
}

// CardGroup is the list of cards in one zone. Names are unique.
type CardGroup []CardEntry

// Names returns the card names in group order.
func (g CardGroup) Names() []string {
	names := make([]string, len(g))
	for i, e := range g {
		names[i] = e.Name
	}
	return names
}

// Contains reports whether the group has an entry with the given name.
func (g CardGroup) Contains(name string) bool {
	for _, e := range g {
		if e.Name == name {
			return true
		}
	}
	return false
}

// TotalCopies sums the copies of every entry.
func (g CardGroup) TotalCopies() int {
	total := 0
	for _, e := range g {
		total += e.Copies
	}
	return total
}

// DeckRecord is one participant's result within one tournament.
type DeckRecord struct {
	Placement string    `json:"place"`
	Player    string    `json:"player"`
	Archetype string    `json:"deck"`
	Event     string    `json:"event"`
	Country   string    `json:"country"`
	Tier      EventTier `json:"tier"`
	Players   int       `json:"players"`
	Link      string    `json:"link"`
	Source    string    `json:"source,omitempty"`
	Main      CardGroup `json:"main"`
	Side      CardGroup `json:"side"`
	Extra     CardGroup `json:"extra"`
}

// NewDeckRecord merges a participant row with the tournament it belongs to
// and the fetched decklist. A nil decklist produces a record without cards.
func NewDeckRecord(ref TournamentReference, event string, row ParticipantRow, deck *Decklist) DeckRecord {
	ref = ref.Normalize()
	if strings.TrimSpace(event) == "" {
		event = ref.Name
	}

	rec := DeckRecord{
		Placement: row.Placement,
		Player:    strings.TrimSpace(row.Player),
		Archetype: row.Archetype,
		Event:     event,
		Country:   ref.Country,
		Tier:      ref.Tier,
		Players:   ref.Players,
		Source:    ref.Source,
		Main:      CardGroup{},
		Side:      CardGroup{},
		Extra:     CardGroup{},
	}
	if row.Decklist != nil {
		rec.Link = row.Decklist.URL
	}
	if deck != nil {
		rec.Main = nonNil(deck.Main)
		rec.Side = nonNil(deck.Side)
		rec.Extra = nonNil(deck.Extra)
	}
	return rec.withFallbacks()
}

// withFallbacks applies the sentinel values for empty labels.
func (r DeckRecord) withFallbacks() DeckRecord {
	r.Archetype = strings.TrimSpace(r.Archetype)
	if r.Archetype == "" {
		r.Archetype = UnknownArchetype
	}
	r.Placement = strings.TrimSpace(r.Placement)
	if r.Placement == "" {
		r.Placement = UnknownPlacement
	}
	if strings.TrimSpace(r.Country) == "" {
		r.Country = UnknownCountry
	}
	if r.Tier == "" {
		r.Tier = TierOther
	}
	return r
}

// Group returns the card group for a zone.
func (r DeckRecord) Group(zone Zone) CardGroup {
	switch zone {
	case ZoneMain:
		return r.Main
	case ZoneSide:
		return r.Side
	case ZoneExtra:
		return r.Extra
	}
	return nil
}

// HasCards reports whether the record has card data for a zone.
func (r DeckRecord) HasCards(zone Zone) bool {
	return len(r.Group(zone)) > 0
}

// HasAnyCards reports whether any zone was populated.
func (r DeckRecord) HasAnyCards() bool {
	return r.HasCards(ZoneMain) || r.HasCards(ZoneSide) || r.HasCards(ZoneExtra)
}

// DedupeRecords drops records that repeat an earlier (event, player, link,
// placement) combination. The first occurrence wins.
func DedupeRecords(records []DeckRecord) []DeckRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]DeckRecord, 0, len(records))
	for _, r := range records {
		key := strings.Join([]string{
			strings.ToLower(r.Event),
			strings.ToLower(r.Player),
			r.Link,
			r.Placement,
		}, "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func nonNil(g CardGroup) CardGroup {
	if g == nil {
		return CardGroup{}
	}
	return g
}
