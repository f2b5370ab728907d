package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/batch"
	"github.com/ramonehamilton/duelmeta/internal/canon"
	"github.com/ramonehamilton/duelmeta/internal/meta"
	"github.com/ramonehamilton/duelmeta/internal/metrics"
)

func percent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

var rightAligned = []table.ColumnConfig{
	{Number: 3, Align: text.AlignRight},
	{Number: 4, Align: text.AlignRight},
}

// ArchetypeTable renders the archetype frequency ranking.
func ArchetypeTable(w io.Writer, view *aggregate.View) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Archetypes (%d decks)", view.Total))
	t.AppendHeader(table.Row{"#", "Archetype", "Decks", "Share"})
	for i, a := range view.Archetypes {
		t.AppendRow(table.Row{i + 1, a.Name, a.Count, percent(a.Share)})
	}
	t.SetColumnConfigs(rightAligned)
	t.Render()
}

// ConverterLine describes the best converting archetype.
func ConverterLine(view *aggregate.View) string {
	bc := view.BestConverter
	if bc == nil {
		return Muted("Best converter: none found")
	}
	return Success(fmt.Sprintf("Best converter: %s (%d wins / %d decks, %s)",
		bc.Archetype, bc.Wins, bc.Count, percent(bc.Rate)))
}

// InclusionTable renders the top cards of one zone.
func InclusionTable(w io.Writer, view *aggregate.View, zone meta.Zone) {
	zt := view.Zones[zone]
	t := newTable(w)
	if zt == nil {
		t.SetTitle(fmt.Sprintf("%s deck (no data)", titleCase(string(zone))))
		t.Render()
		return
	}
	t.SetTitle(fmt.Sprintf("%s deck (%d decks)", titleCase(string(zone)), zt.Decks))
	t.AppendHeader(table.Row{"#", "Card", "Decks", "Inclusion"})
	for i, c := range zt.Top {
		t.AppendRow(table.Row{i + 1, c.Name, c.Decks, percent(c.Rate)})
	}
	t.SetColumnConfigs(rightAligned)
	t.Render()
}

// ReportTables renders the complete aggregate view.
func ReportTables(w io.Writer, view *aggregate.View) {
	ArchetypeTable(w, view)
	fmt.Fprintln(w, ConverterLine(view))
	for _, zone := range meta.Zones {
		InclusionTable(w, view, zone)
	}
}

// LookupTable renders the inclusion of one card, followed by canonical
// suggestions when any are given.
func LookupTable(w io.Writer, lookup aggregate.CardLookup, suggestions []canon.Match) {
	t := newTable(w)
	t.SetTitle(lookup.Name)
	t.AppendHeader(table.Row{"Main", "Side", "Extra"})
	t.AppendRow(table.Row{percent(lookup.Main), percent(lookup.Side), percent(lookup.Extra)})
	t.Render()

	if len(suggestions) == 0 {
		return
	}
	s := newTable(w)
	s.SetTitle("Did you mean")
	s.AppendHeader(table.Row{"Card", "Kind", "Score"})
	for _, m := range suggestions {
		s.AppendRow(table.Row{m.Name, string(m.Kind), fmt.Sprintf("%.0f", m.Score)})
	}
	s.Render()
}

// StatusTable renders a checkpoint with the last logTail log lines.
func StatusTable(w io.Writer, state batch.State, snap batch.BatchState, logTail int) {
	t := newTable(w)
	t.SetTitle("Batch status")
	t.AppendRows([]table.Row{
		{"State", string(state)},
		{"Run", snap.RunID},
		{"Source", snap.Source},
		{"Started", snap.StartedAt},
		{"Progress", fmt.Sprintf("%d / %d (%s)", snap.Processed(), snap.Total, percent(snap.Progress()))},
		{"Queued", len(snap.Queue)},
		{"Records", len(snap.Results)},
	})
	t.Render()

	logs := snap.Logs
	if logTail > 0 && len(logs) > logTail {
		logs = logs[len(logs)-logTail:]
	}
	for _, line := range logs {
		if strings.HasPrefix(line, "Error:") {
			fmt.Fprintln(w, Error(line))
			continue
		}
		fmt.Fprintln(w, Muted(line))
	}
}

// ReferenceTable renders discovered tournaments.
func ReferenceTable(w io.Writer, refs []meta.TournamentReference) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Tournaments (%d)", len(refs)))
	t.AppendHeader(table.Row{"#", "Event", "Tier", "Country", "Players", "Date"})
	for i, r := range refs {
		players := "?"
		if r.Players > 0 {
			players = fmt.Sprint(r.Players)
		}
		t.AppendRow(table.Row{i + 1, r.Name, string(r.Tier), r.Country, players, r.Date})
	}
	t.Render()
}

// CoverageRow is one event's top-cut coverage.
type CoverageRow struct {
	Event    string
	Decks    int
	Coverage meta.Coverage
}

// CoverageTable renders per-event top-cut coverage.
func CoverageTable(w io.Writer, rows []CoverageRow) {
	t := newTable(w)
	t.SetTitle("Top cut coverage")
	t.AppendHeader(table.Row{"Event", "Decks", "Coverage"})
	for _, r := range rows {
		status := Success(r.Coverage.String())
		if !r.Coverage.Complete {
			status = Error(r.Coverage.String())
		}
		t.AppendRow(table.Row{r.Event, r.Decks, status})
	}
	t.Render()
}

// MetricsTable renders fetch metrics of a run.
func MetricsTable(w io.Writer, stats *metrics.RunStats) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Run metrics (%s)", stats.Elapsed))
	t.AppendHeader(table.Row{"Operation", "Count", "Mean ms", "P95 ms"})
	t.AppendRows([]table.Row{
		{"Participants", stats.ParticipantsLatency.Count, fmt.Sprintf("%.0f", stats.ParticipantsLatency.Mean), fmt.Sprintf("%.0f", stats.ParticipantsLatency.P95)},
		{"Decklists", stats.DecklistLatency.Count, fmt.Sprintf("%.0f", stats.DecklistLatency.Mean), fmt.Sprintf("%.0f", stats.DecklistLatency.P95)},
		{"Tournaments", stats.UnitLatency.Count, fmt.Sprintf("%.0f", stats.UnitLatency.Mean), fmt.Sprintf("%.0f", stats.UnitLatency.P95)},
	})
	t.AppendFooter(table.Row{"Records", stats.Records, "Errors", stats.FetchErrors})
	t.Render()
}

// TierListTables renders the tier list breakdown and its card tabs.
func TierListTables(w io.Writer, list *meta.TierList) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("Tier list (%d archetypes)", len(list.Decks)))
	t.AppendHeader(table.Row{"#", "Archetype", "Decks", "Share"})
	for i, d := range list.Decks {
		t.AppendRow(table.Row{i + 1, d.Name, d.Count, fmt.Sprintf("%.2f%%", d.Percent)})
	}
	t.SetColumnConfigs(rightAligned)
	t.Render()

	for _, tab := range []struct {
		title string
		cards []meta.CardUsage
	}{
		{"Main deck techs", list.Techs},
		{"Side deck staples", list.Side},
	} {
		t := newTable(w)
		t.SetTitle(fmt.Sprintf("%s (%d)", tab.title, len(tab.cards)))
		t.AppendHeader(table.Row{"#", "Card", "Usage"})
		for i, c := range tab.cards {
			t.AppendRow(table.Row{i + 1, c.Name, c.Usage})
		}
		t.Render()
	}
}

// TechTable renders one view of the techs breakdown.
func TechTable(w io.Writer, title string, cards []meta.TechCard) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("%s (%d)", title, len(cards)))
	t.AppendHeader(table.Row{"#", "Card", "Decks", "Share", "Avg copies"})
	for i, c := range cards {
		t.AppendRow(table.Row{i + 1, c.Name, c.Count, fmt.Sprintf("%.1f%%", c.Percent), fmt.Sprintf("%.1f", c.Average)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
