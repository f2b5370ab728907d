package meta

import (
	"context"
)

// Source is a tournament site adapter. Each adapter translates its site's
// pages or API responses into the canonical record shapes.
type Source interface {
	// Name identifies the adapter in configuration and records.
	Name() string

	// Workers is the decklist fetch concurrency the site tolerates.
	Workers() int

	// Discover lists recent tournaments.
	Discover(ctx context.Context, opts DiscoverOptions) ([]TournamentReference, error)

	// FetchParticipants returns the participant table of one tournament.
	FetchParticipants(ctx context.Context, ref TournamentReference) (*ParticipantTable, error)

	// FetchDecklist returns the card lists of one registered deck.
	FetchDecklist(ctx context.Context, ref DecklistRef) (*Decklist, error)
}

// ParticipantTable is the published result table of one tournament.
type ParticipantTable struct {
	EventName string
	Country   string    // Optional; overrides the reference country when set
	Rows      []ParticipantRow
	Coverage  *Coverage // Top cut completeness, when the source allows checking it
}

// ParticipantRow is one line of a participant table. Decklist is nil when
// the row has no resolvable decklist.
type ParticipantRow struct {
	Placement string
	Player    string
	Archetype string
	Decklist  *DecklistRef
}

// Placements returns the placement of every row.
func (t *ParticipantTable) Placements() []Placement {
	out := make([]Placement, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = Placement(r.Placement)
	}
	return out
}
