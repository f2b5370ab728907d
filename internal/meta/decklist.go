package meta

import (
	"sort"
	"strings"
)

// RawCard is one card occurrence as extracted from a source, before grouping.
// HTML sources emit one RawCard per card image with Amount 1; JSON sources
// emit one per {card, amount} pair.
type RawCard struct {
	Name   string
	Amount int
	Image  string
}

// Decklist is the card composition of one registered deck.
type Decklist struct {
	Main  CardGroup `json:"main"`
	Extra CardGroup `json:"extra"`
	Side  CardGroup `json:"side"`
}

// Empty reports whether no zone has any cards.
func (d *Decklist) Empty() bool {
	return d == nil || (len(d.Main) == 0 && len(d.Extra) == 0 && len(d.Side) == 0)
}

// DecklistRef points at a decklist. Inline is set when the participant
// listing already carried the card data.
type DecklistRef struct {
	URL    string    `json:"url"`
	Inline *Decklist `json:"inline,omitempty"`
}

// GroupCards merges same-named cards into one entry with summed copies.
// Entries with an empty name or a non-positive amount are dropped. The first
// non-empty image seen for a name is kept. The result is ordered by copies
// descending, ties keeping first-seen order.
func GroupCards(raw []RawCard) CardGroup {
	index := make(map[string]int, len(raw))
	group := make(CardGroup, 0, len(raw))

	for _, c := range raw {
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Amount <= 0 {
			continue
		}
		if i, ok := index[name]; ok {
			group[i].Copies += c.Amount
			if group[i].Image == "" {
				group[i].Image = c.Image
			}
			continue
		}
		index[name] = len(group)
		group = append(group, CardEntry{Name: name, Copies: c.Amount, Image: c.Image})
	}

	sort.SliceStable(group, func(i, j int) bool {
		return group[i].Copies > group[j].Copies
	})
	return group
}

// NormalizeDecklist regroups every zone of an already-built decklist. It is
// applied to inline JSON decklists so that malformed or repeated entries
// never reach a DeckRecord.
func NormalizeDecklist(d *Decklist) *Decklist {
	if d == nil {
		return nil
	}
	return &Decklist{
		Main:  regroup(d.Main),
		Extra: regroup(d.Extra),
		Side:  regroup(d.Side),
	}
}

func regroup(g CardGroup) CardGroup {
	raw := make([]RawCard, len(g))
	for i, e := range g {
		raw[i] = RawCard{Name: e.Name, Amount: e.Copies, Image: e.Image}
	}
	return GroupCards(raw)
}
