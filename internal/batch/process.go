package batch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ramonehamilton/duelmeta/internal/meta"
)

type fetchResult struct {
	deck *meta.Decklist
	err  error
}

// ProcessOne fetches one tournament's participant table and every decklist
// it references. Errors never escape: they become log lines. A failed
// participant fetch yields no records. Decklists are fetched concurrently up
// to the source's worker limit; each task only fills its own result slot and
// records are built once all tasks have finished.
func (e *Engine) ProcessOne(ctx context.Context, ref meta.TournamentReference) ([]meta.DeckRecord, []string) {
	ctx, span := tracer.Start(ctx, "batch.ProcessOne")
	span.SetAttributes(attribute.String("url", ref.URL), attribute.String("event", ref.Name))
	defer span.End()

	src := e.config.Source
	name := ref.Name
	if name == "" {
		name = ref.URL
	}

	start := time.Now()
	table, err := src.FetchParticipants(ctx, ref)
	e.config.Metrics.RecordParticipants(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		return nil, []string{fmt.Sprintf("Error: %s: %v", name, err)}
	}

	var logs []string
	event := table.EventName
	if event == "" {
		event = name
	}
	if table.Country != "" {
		ref.Country = table.Country
	}
	if table.Coverage != nil {
		logs = append(logs, fmt.Sprintf("%s: %s", event, table.Coverage))
	}

	rows := make([]meta.ParticipantRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		if row.Decklist == nil {
			continue
		}
		rows = append(rows, row)
	}

	results := make([]fetchResult, len(rows))
	var g errgroup.Group
	g.SetLimit(src.Workers())
	for i, row := range rows {
		g.Go(func() error {
			t := time.Now()
			deck, err := src.FetchDecklist(ctx, *row.Decklist)
			e.config.Metrics.RecordDecklist(time.Since(t), meta.IsEmpty(err), err)
			results[i] = fetchResult{deck: deck, err: err}
			return nil
		})
	}
	_ = g.Wait()

	records := make([]meta.DeckRecord, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		r := results[i]
		switch {
		case r.err == nil:
			records = append(records, meta.NewDeckRecord(ref, event, row, r.deck))
		case meta.IsEmpty(r.err):
			records = append(records, meta.NewDeckRecord(ref, event, row, nil))
			logs = append(logs, fmt.Sprintf("No cards extracted: %s (%s)", playerLabel(row), row.Decklist.URL))
		default:
			skipped++
			logs = append(logs, fmt.Sprintf("Skipped decklist: %s: %v", playerLabel(row), r.err))
		}
	}

	summary := fmt.Sprintf("Processed %s: %d decks", event, len(records))
	if skipped > 0 {
		summary += fmt.Sprintf(" (%d skipped)", skipped)
	}
	logs = append(logs, summary)

	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("skipped", skipped))
	return records, logs
}

func playerLabel(row meta.ParticipantRow) string {
	if row.Player != "" {
		return row.Player
	}
	return "unknown player"
}
