package export

import (
	"io"

	"github.com/ramonehamilton/duelmeta/internal/meta"
)

// DeckRow is the one-row-per-record CSV shape.
type DeckRow struct {
	Event      string `csv:"event"`
	Country    string `csv:"country"`
	Tier       string `csv:"tier"`
	Players    int    `csv:"players"`
	Placement  string `csv:"placement"`
	Player     string `csv:"player"`
	Archetype  string `csv:"archetype"`
	Link       string `csv:"link"`
	MainCount  int    `csv:"main_count"`
	SideCount  int    `csv:"side_count"`
	ExtraCount int    `csv:"extra_count"`
}

// CardRow is one card entry of one record. Records without cards produce a
// single row with empty card columns.
type CardRow struct {
	Event     string `csv:"event"`
	Placement string `csv:"placement"`
	Player    string `csv:"player"`
	Archetype string `csv:"archetype"`
	Zone      string `csv:"zone"`
	Card      string `csv:"card"`
	Copies    int    `csv:"copies"`
	Link      string `csv:"link"`
}

// DeckRows flattens records into summary rows.
func DeckRows(records []meta.DeckRecord) []DeckRow {
	rows := make([]DeckRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, DeckRow{
			Event:      r.Event,
			Country:    r.Country,
			Tier:       string(r.Tier),
			Players:    r.Players,
			Placement:  r.Placement,
			Player:     r.Player,
			Archetype:  r.Archetype,
			Link:       r.Link,
			MainCount:  r.Main.TotalCopies(),
			SideCount:  r.Side.TotalCopies(),
			ExtraCount: r.Extra.TotalCopies(),
		})
	}
	return rows
}

// CardRows flattens records into one row per card entry.
func CardRows(records []meta.DeckRecord) []CardRow {
	var rows []CardRow
	for _, r := range records {
		base := CardRow{
			Event:     r.Event,
			Placement: r.Placement,
			Player:    r.Player,
			Archetype: r.Archetype,
			Link:      r.Link,
		}
		if !r.HasAnyCards() {
			rows = append(rows, base)
			continue
		}
		for _, zone := range meta.Zones {
			for _, c := range r.Group(zone) {
				row := base
				row.Zone = string(zone)
				row.Card = c.Name
				row.Copies = c.Copies
				rows = append(rows, row)
			}
		}
	}
	if rows == nil {
		rows = []CardRow{}
	}
	return rows
}

func recordData(format Format, records []meta.DeckRecord) any {
	switch format {
	case FormatCSV:
		return CardRows(records)
	case FormatSummaryCSV:
		return DeckRows(records)
	}
	if records == nil {
		return []meta.DeckRecord{}
	}
	return records
}

// ExportRecords writes records to w in the given format.
func ExportRecords(w io.Writer, format Format, records []meta.DeckRecord) error {
	return ExportToWriter(w, format, recordData(format, records), true)
}

// ExportRecords writes records to the configured file.
func (e *Exporter) ExportRecords(records []meta.DeckRecord) error {
	return e.Export(recordData(e.opts.Format, records))
}
