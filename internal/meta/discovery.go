package meta

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ramonehamilton/duelmeta/internal/stats"
)

// DefaultExcludedTokens marks alternate formats and non-target regions.
var DefaultExcludedTokens = []string{
	"Master Duel", "Speed Duel", "Duel Links", "Rush Duel", "Time Wizard", "Edison", "Goat",
	"Japan", "Korea", "China", "Philippines", "Thailand", "Singapore", "Malaysia", "Taiwan", "Vietnam",
}

const (
	// DefaultDateLayout is the listing date format, e.g. "Dec 14, 2025".
	DefaultDateLayout = "Jan 2, 2006"

	// DefaultUnknownPlayers is the literal a listing uses for an unknown field size.
	DefaultUnknownPlayers = "Unknown"
)

var listingDate = regexp.MustCompile(`[A-Z][a-z]{2} \d{1,2}, \d{4}`)

// DiscoveryPolicy holds the row relevance rules.
type DiscoveryPolicy struct {
	Exclude         []string // Tokens that reject a row when present in its text
	MinPlayers      int      // Minimum reported field size
	UnknownSentinel string   // Size cell literal kept despite being unparseable
	DateLayout      string   // time.Parse layout of the listing dates
}

// DefaultDiscoveryPolicy returns the policy used when none is configured.
func DefaultDiscoveryPolicy() DiscoveryPolicy {
	return DiscoveryPolicy{
		Exclude:         append([]string(nil), DefaultExcludedTokens...),
		MinPlayers:      80,
		UnknownSentinel: DefaultUnknownPlayers,
		DateLayout:      DefaultDateLayout,
	}
}

// DiscoverOptions parameterizes a discovery pass.
type DiscoverOptions struct {
	LookbackDays int
	Tiers        []string // Listing tier values to request; empty means all configured
	Policy       DiscoveryPolicy
	Now          func() time.Time
	Logger       *slog.Logger
}

// DefaultDiscoverOptions returns options for a 60 day lookback.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		LookbackDays: 60,
		Policy:       DefaultDiscoveryPolicy(),
	}
}

func (o DiscoverOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o DiscoverOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// RowFilter builds the filter for this pass.
func (o DiscoverOptions) RowFilter() RowFilter {
	return RowFilter{
		Policy: o.Policy,
		Window: stats.LookbackRangeFrom(o.now(), o.LookbackDays),
	}
}

// ListingRow is one row read from a listing page.
type ListingRow struct {
	URL      string
	Text     string
	SizeCell string
	Cells    []string
}

// AcceptedRow is a listing row that passed the filter.
type AcceptedRow struct {
	ListingRow
	Players int
	Date    time.Time
}

// RowFilter applies a DiscoveryPolicy within a lookback window.
type RowFilter struct {
	Policy DiscoveryPolicy
	Window stats.TimeRange
}

// Accept reports whether a row is relevant. A row is kept only when it has
// no excluded token, a large enough (or explicitly unknown) field size and a
// parseable date on or after the window start. Rows without a date are
// dropped.
func (f RowFilter) Accept(row ListingRow) (AcceptedRow, bool) {
	text := strings.ToLower(row.Text)
	for _, token := range f.Policy.Exclude {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" && strings.Contains(text, token) {
			return AcceptedRow{}, false
		}
	}

	players, ok := f.parsePlayers(row.SizeCell)
	if !ok {
		return AcceptedRow{}, false
	}

	layout := f.Policy.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	token := listingDate.FindString(row.Text)
	if token == "" {
		return AcceptedRow{}, false
	}
	date, err := time.ParseInLocation(layout, token, f.Window.Start.Location())
	if err != nil {
		return AcceptedRow{}, false
	}
	if !f.Window.ContainsDate(date) {
		return AcceptedRow{}, false
	}

	return AcceptedRow{ListingRow: row, Players: players, Date: date}, true
}

// parsePlayers returns the field size and whether the size rule accepts it.
func (f RowFilter) parsePlayers(cell string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, cell)

	if digits == "" {
		sentinel := f.Policy.UnknownSentinel
		if sentinel == "" {
			sentinel = DefaultUnknownPlayers
		}
		return 0, strings.EqualFold(strings.TrimSpace(cell), sentinel)
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, n >= f.Policy.MinPlayers
}

// Discover runs a source's discovery and returns its references normalized
// and deduplicated by identifier, keeping the first occurrence.
func Discover(ctx context.Context, src Source, opts DiscoverOptions) ([]TournamentReference, error) {
	logger := opts.logger()
	logger.Info("Discovery started", "source", src.Name(), "lookbackDays", opts.LookbackDays)

	refs, err := src.Discover(ctx, opts)
	if err != nil {
		logger.Warn("Discovery failed", "source", src.Name(), "error", err)
		return nil, err
	}

	out := DedupeReferences(refs)
	for i := range out {
		if out[i].Source == "" {
			out[i].Source = src.Name()
		}
	}

	logger.Info("Discovery finished", "source", src.Name(), "found", len(out))
	return out, nil
}

// DedupeReferences drops references whose key was already seen.
func DedupeReferences(refs []TournamentReference) []TournamentReference {
	seen := make(map[string]struct{}, len(refs))
	out := make([]TournamentReference, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.Key()]; ok {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, r.Normalize())
	}
	return out
}
