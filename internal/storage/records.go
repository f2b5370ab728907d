package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ramonehamilton/duelmeta/internal/meta"
)

// RecordStore reads and writes deck records with their card lists.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a record store on db.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// SaveRecords inserts records under runID. A record whose (event, player,
// link, placement) already exists is skipped along with its cards. It
// returns the number of records inserted.
func (s *RecordStore) SaveRecords(ctx context.Context, runID string, records []meta.DeckRecord) (int, error) {
	inserted := 0
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		recordStmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO deck_records
				(run_id, placement, player, archetype, event, country, tier, players, link, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare record insert: %w", err)
		}
		defer recordStmt.Close()

		cardStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO deck_cards (record_id, zone, position, name, copies, image)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare card insert: %w", err)
		}
		defer cardStmt.Close()

		for _, r := range records {
			res, err := recordStmt.ExecContext(ctx,
				runID, r.Placement, r.Player, r.Archetype, r.Event,
				r.Country, string(r.Tier), r.Players, r.Link, r.Source,
			)
			if err != nil {
				return fmt.Errorf("insert record %s/%s: %w", r.Event, r.Player, err)
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				continue
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("record id: %w", err)
			}

			for _, zone := range meta.Zones {
				for pos, c := range r.Group(zone) {
					if _, err := cardStmt.ExecContext(ctx, id, string(zone), pos, c.Name, c.Copies, c.Image); err != nil {
						return fmt.Errorf("insert card %q: %w", c.Name, err)
					}
				}
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListRecords returns every stored record in insertion order.
func (s *RecordStore) ListRecords(ctx context.Context) ([]meta.DeckRecord, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, placement, player, archetype, event, country, tier, players, link, source
		FROM deck_records
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []meta.DeckRecord
	index := make(map[int64]int)
	for rows.Next() {
		var id int64
		var tier string
		r := meta.DeckRecord{Main: meta.CardGroup{}, Side: meta.CardGroup{}, Extra: meta.CardGroup{}}
		if err := rows.Scan(&id, &r.Placement, &r.Player, &r.Archetype, &r.Event,
			&r.Country, &tier, &r.Players, &r.Link, &r.Source); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Tier = meta.EventTier(tier)
		index[id] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	if err := s.attachCards(ctx, records, index); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *RecordStore) attachCards(ctx context.Context, records []meta.DeckRecord, index map[int64]int) error {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT record_id, zone, name, copies, image
		FROM deck_cards
		ORDER BY record_id, zone, position
	`)
	if err != nil {
		return fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var zone string
		var c meta.CardEntry
		if err := rows.Scan(&id, &zone, &c.Name, &c.Copies, &c.Image); err != nil {
			return fmt.Errorf("scan card: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		r := &records[i]
		switch meta.Zone(zone) {
		case meta.ZoneMain:
			r.Main = append(r.Main, c)
		case meta.ZoneSide:
			r.Side = append(r.Side, c)
		case meta.ZoneExtra:
			r.Extra = append(r.Extra, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cards: %w", err)
	}
	return nil
}

// CountRecords returns the number of stored records.
func (s *RecordStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM deck_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Runs returns the distinct run identifiers in the store.
func (s *RecordStore) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT run_id FROM deck_records GROUP BY run_id ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}
