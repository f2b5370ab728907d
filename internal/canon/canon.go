// Package canon maps raw card names, as scraped or typed, onto canonical
// card names from a reference list.
package canon

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Kind is the coarse card classification used for display grouping.
type Kind string

const (
	KindMonster Kind = "monster"
	KindSpell   Kind = "spell"
	KindTrap    Kind = "trap"
)

// KindOf derives the kind from a card type string such as "Quick-Play
// Spell Card" or "Effect Monster". Unknown types count as monsters.
func KindOf(cardType string) Kind {
	t := strings.ToLower(cardType)
	switch {
	case strings.Contains(t, "spell"):
		return KindSpell
	case strings.Contains(t, "trap"):
		return KindTrap
	}
	return KindMonster
}

// Entry is one reference card.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Match is a scored candidate.
type Match struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Kind  Kind    `json:"kind"`
	Score float64 `json:"score"` // 0-100
}

// DefaultMinScore is the lowest score Canonicalize accepts.
const DefaultMinScore = 50.0

// Index holds reference entries for lookups.
type Index struct {
	entries  []Entry
	byFolded map[string]int

	// MinScore is the acceptance threshold for fuzzy matches.
	MinScore float64
}

// NewIndex builds an index. Later duplicates of a name are ignored.
func NewIndex(entries []Entry) *Index {
	idx := &Index{
		byFolded: make(map[string]int, len(entries)),
		MinScore: DefaultMinScore,
	}
	for _, e := range entries {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		key := fold(e.Name)
		if _, dup := idx.byFolded[key]; dup {
			continue
		}
		idx.byFolded[key] = len(idx.entries)
		idx.entries = append(idx.entries, e)
	}
	return idx
}

// Len returns the number of reference entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// LoadIndex reads a "name,type" CSV file. A header row whose first
// column is "name" is skipped.
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open card reference: %w", err)
	}
	defer f.Close()

	idx, err := ReadIndex(f)
	if err != nil {
		return nil, fmt.Errorf("read card reference %s: %w", path, err)
	}
	return idx, nil
}

// ReadIndex reads "name,type" CSV records from r.
func ReadIndex(r io.Reader) (*Index, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var entries []Entry
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
			continue
		}
		e := Entry{Name: rec[0]}
		if len(rec) > 1 {
			e.Type = strings.TrimSpace(rec[1])
		}
		entries = append(entries, e)
	}
	return NewIndex(entries), nil
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Score rates the similarity of two names in [0, 100]. It blends
// Jaro-Winkler with normalized Levenshtein distance over folded names.
func Score(a, b string) float64 {
	a, b = fold(a), fold(b)
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	jw := matchr.JaroWinkler(a, b, false)

	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	lev := 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
	if lev < 0 {
		lev = 0
	}
	return 100 * (0.7*jw + 0.3*lev)
}

func (idx *Index) match(i int, score float64) Match {
	e := idx.entries[i]
	return Match{Name: e.Name, Type: e.Type, Kind: KindOf(e.Type), Score: score}
}

// Canonicalize returns the canonical entry for raw. An exact
// case-insensitive hit scores 100; otherwise the best fuzzy candidate is
// returned when it reaches MinScore.
func (idx *Index) Canonicalize(raw string) (Match, bool) {
	if i, ok := idx.byFolded[fold(raw)]; ok {
		return idx.match(i, 100), true
	}

	best, bestScore := -1, 0.0
	for i, e := range idx.entries {
		if s := Score(raw, e.Name); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore < idx.MinScore {
		return Match{}, false
	}
	return idx.match(best, bestScore), true
}

// SearchOptions bounds a search.
type SearchOptions struct {
	Limit    int     // 0 means 5
	MinScore float64 // 0 means the index threshold
}

// Search returns the best candidates for query, highest score first. Ties
// keep reference order.
func (idx *Index) Search(query string, opts SearchOptions) []Match {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.MinScore <= 0 {
		opts.MinScore = idx.MinScore
	}

	var out []Match
	for i, e := range idx.entries {
		if s := Score(query, e.Name); s >= opts.MinScore {
			out = append(out, idx.match(i, s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
