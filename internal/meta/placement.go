package meta

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placement is a free-text placement label as published by a source, such as
// "Winner", "1st", "3.5" or "Top 8". The raw label is always preserved.
type Placement string

var rankNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Rank extracts a best-effort numeric rank from the label. The boolean is
// false when the label carries no recognizable rank.
func (p Placement) Rank() (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(string(p)))
	if s == "" {
		return 0, false
	}
	switch {
	case strings.Contains(s, "winner"):
		return 1, true
	case strings.Contains(s, "finalist"):
		return 2, true
	}

	m := rankNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// String returns the raw label.
func (p Placement) String() string {
	return string(p)
}

// FormatRank turns a numeric source placement into a display label.
func FormatRank(v float64) string {
	switch {
	case v <= 0:
		return UnknownPlacement
	case v == 1:
		return "Winner"
	case v == 2:
		return "Finalist"
	case v <= 4:
		return "Top 4"
	case v <= 8:
		return "Top 8"
	case v <= 16:
		return "Top 16"
	case v <= 32:
		return "Top 32"
	case v <= 64:
		return "Top 64"
	}
	return "Rank " + strconv.FormatFloat(v, 'f', -1, 64)
}

// DefaultWinnerPatterns are the substrings that mark a winning placement.
var DefaultWinnerPatterns = []string{"winner", "1st"}

// WinnerMatcher decides whether a placement label denotes a tournament win.
// Matching is a case-insensitive substring test against each pattern.
type WinnerMatcher struct {
	Patterns []string
}

// NewWinnerMatcher returns a matcher for the given patterns, falling back to
// DefaultWinnerPatterns when none are supplied.
func NewWinnerMatcher(patterns []string) WinnerMatcher {
	clean := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		clean = append(clean, DefaultWinnerPatterns...)
	}
	return WinnerMatcher{Patterns: clean}
}

// Matches reports whether label is a winner placement.
func (m WinnerMatcher) Matches(label string) bool {
	patterns := m.Patterns
	if len(patterns) == 0 {
		patterns = DefaultWinnerPatterns
	}
	s := strings.ToLower(label)
	for _, p := range patterns {
		if strings.Contains(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Coverage describes how complete the published top cut of an event is.
type Coverage struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing,omitempty"`
}

// String renders the coverage summary.
func (c Coverage) String() string {
	if c.Complete {
		return "Full top cut data available"
	}
	return "Missing data: " + strings.Join(c.Missing, ", ")
}

// AnalyzeCoverage checks the placements of one event against the expected
// top cut: one winner, one finalist, two top 4 and four top 8 finishes.
func AnalyzeCoverage(placements []Placement) Coverage {
	var winners, finalists, top4, top8 int
	for _, p := range placements {
		rank, ok := p.Rank()
		if !ok {
			continue
		}
		switch {
		case rank == 1:
			winners++
		case rank == 2:
			finalists++
		case rank > 2 && rank <= 4:
			top4++
		case rank > 4 && rank <= 8:
			top8++
		}
	}

	var missing []string
	if winners < 1 {
		missing = append(missing, "Winner")
	}
	if finalists < 1 {
		missing = append(missing, "Finalist")
	}
	if top4 < 2 {
		missing = append(missing, fmt.Sprintf("Top 4 (%d missing)", 2-top4))
	}
	if top8 < 4 {
		missing = append(missing, fmt.Sprintf("Top 8 (%d missing)", 4-top8))
	}
	return Coverage{Complete: len(missing) == 0, Missing: missing}
}
