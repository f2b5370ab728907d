package meta

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramonehamilton/duelmeta/internal/render"
)

const (
	listingTierSelect   = "#filter-tier"
	listingFormatSelect = "#filter-format"
	listingSizeSelect   = "select"
	listingLinkSelector = "a[href*='/tournament/']"

	participantContainer = "div#tournament_table"
	participantRows      = "a.tournament_table_row, div.tournament_table_row"
	participantCells     = "span.as-tablecell"

	cardImageSelector = "img[data-cardname]"
)

// TierFilter is one option of the listing tier filter.
type TierFilter struct {
	Value string `toml:"value"` // Option value submitted to the filter
	Label string `toml:"label"` // Human label, also used as classification hint
}

// YGOProDeckConfig configures the ygoprodeck adapter.
type YGOProDeckConfig struct {
	// BaseURL is the site root used to absolutize links.
	BaseURL string

	// ListingPath is the tournament listing page.
	ListingPath string

	// Tiers are the listing tier filters visited in order.
	Tiers []TierFilter

	// FormatValue is the format filter option.
	FormatValue string

	// PageSize is the listing page size option.
	PageSize string

	// ScrollAttempts bounds lazy loading per tier.
	ScrollAttempts int

	// WaitTimeout bounds waiting for the listing filters.
	WaitTimeout time.Duration

	// RequestTimeout is the HTTP request timeout.
	RequestTimeout time.Duration

	// RateLimitMs is minimum milliseconds between requests.
	RateLimitMs int

	// Workers is the decklist fetch concurrency.
	Workers int

	// UserAgent is sent with every request.
	UserAgent string

	// Cloudflare enables the Cloudflare bypass transport.
	Cloudflare bool

	Logger *slog.Logger
}

// DefaultYGOProDeckConfig returns default configuration.
func DefaultYGOProDeckConfig() *YGOProDeckConfig {
	return &YGOProDeckConfig{
		BaseURL:     "https://ygoprodeck.com",
		ListingPath: "/tournaments/",
		Tiers: []TierFilter{
			{Value: "2", Label: "Competitive"},
			{Value: "3", Label: "Premier"},
		},
		FormatValue:    "TCG",
		PageSize:       "100",
		ScrollAttempts: 5,
		WaitTimeout:    15 * time.Second,
		RequestTimeout: 10 * time.Second,
		RateLimitMs:    500,
		Workers:        2,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Cloudflare:     true,
	}
}

// YGOProDeck reads the ygoprodeck tournament listing, participant tables
// and HTML deck pages.
type YGOProDeck struct {
	config  *YGOProDeckConfig
	browser render.Browser
	client  *resty.Client
	logger  *slog.Logger
}

// NewYGOProDeck creates the adapter. The browser renders the listing page.
func NewYGOProDeck(config *YGOProDeckConfig, browser render.Browser) *YGOProDeck {
	if config == nil {
		config = DefaultYGOProDeckConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &YGOProDeck{
		config:  config,
		browser: browser,
		client: newHTTPClient(clientOptions{
			UserAgent:   config.UserAgent,
			Timeout:     config.RequestTimeout,
			RateLimitMs: config.RateLimitMs,
			Cloudflare:  config.Cloudflare,
		}),
		logger: logger,
	}
}

// Name returns the adapter name.
func (y *YGOProDeck) Name() string {
	return SourceYGOProDeck
}

// Workers returns the decklist fetch concurrency.
func (y *YGOProDeck) Workers() int {
	if y.config.Workers < 1 {
		return 1
	}
	return y.config.Workers
}

// tiers returns the configured tier filters narrowed to the requested values.
func (y *YGOProDeck) tiers(values []string) []TierFilter {
	if len(values) == 0 {
		return y.config.Tiers
	}
	var out []TierFilter
	for _, t := range y.config.Tiers {
		for _, v := range values {
			if strings.EqualFold(v, t.Value) || strings.EqualFold(v, t.Label) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Discover renders the listing once per tier, scrolls until the row count
// settles and keeps the rows the policy accepts. A URL accepted under an
// earlier tier is not reported again.
func (y *YGOProDeck) Discover(ctx context.Context, opts DiscoverOptions) (refs []TournamentReference, err error) {
	ctx, span := tracer.Start(ctx, "ygoprodeck.Discover")
	defer func() { endSpan(span, err) }()

	if y.browser == nil {
		return nil, &DiscoveryError{Source: y.Name(), Err: fmt.Errorf("no renderer configured")}
	}

	listing := absoluteURL(y.config.BaseURL, y.config.ListingPath)
	page, err := y.browser.NewPage(ctx)
	if err != nil {
		return nil, &DiscoveryError{Source: y.Name(), Err: err}
	}
	defer page.Close()

	if err := page.Navigate(ctx, listing); err != nil {
		return nil, &DiscoveryError{Source: y.Name(), Err: err}
	}

	filter := opts.RowFilter()
	seen := make(map[string]struct{})

	for i, tier := range y.tiers(opts.Tiers) {
		if err := ctx.Err(); err != nil {
			return refs, err
		}

		if err := page.WaitFor(ctx, listingTierSelect, y.config.WaitTimeout); err != nil {
			if i == 0 {
				return nil, &DiscoveryError{Source: y.Name(), Err: err}
			}
			y.logger.Warn("Listing filters unavailable", "tier", tier.Label, "error", err)
			continue
		}

		found, err := y.applyFilters(ctx, page, tier)
		if err != nil {
			y.logger.Warn("Failed to apply listing filters", "tier", tier.Label, "error", err)
			continue
		}
		if !found {
			y.logger.Debug("Tier option missing", "tier", tier.Label)
		}

		count, err := render.ScrollUntilStable(ctx, page, listingLinkSelector, y.config.ScrollAttempts)
		if err != nil {
			y.logger.Warn("Scrolling listing failed", "tier", tier.Label, "error", err)
			continue
		}

		anchors, err := page.Anchors(ctx, listingLinkSelector)
		if err != nil {
			y.logger.Warn("Reading listing rows failed", "tier", tier.Label, "error", err)
			continue
		}

		accepted := 0
		for _, a := range anchors {
			ref, ok := y.referenceFromAnchor(a, tier, filter)
			if !ok {
				continue
			}
			if _, dup := seen[ref.URL]; dup {
				continue
			}
			seen[ref.URL] = struct{}{}
			refs = append(refs, ref)
			accepted++
		}

		y.logger.Debug("Listing tier scanned", "tier", tier.Label, "rows", count, "accepted", accepted)
	}

	span.SetAttributes(attribute.Int("tournaments", len(refs)))
	return refs, nil
}

func (y *YGOProDeck) applyFilters(ctx context.Context, page render.Page, tier TierFilter) (bool, error) {
	found, err := page.SelectOption(ctx, listingTierSelect, tier.Value)
	if err != nil {
		return false, err
	}
	if y.config.FormatValue != "" {
		if _, err := page.SelectOption(ctx, listingFormatSelect, y.config.FormatValue); err != nil {
			return found, err
		}
	}
	if y.config.PageSize != "" {
		if _, err := page.SelectOption(ctx, listingSizeSelect, y.config.PageSize); err != nil {
			return found, err
		}
	}
	return found, nil
}

// referenceFromAnchor turns a listing anchor into a reference when the row
// passes the filter. The field size is the fourth cell of the row.
func (y *YGOProDeck) referenceFromAnchor(a render.Anchor, tier TierFilter, filter RowFilter) (TournamentReference, bool) {
	if !strings.Contains(a.Href, "/tournament/") {
		return TournamentReference{}, false
	}

	row := ListingRow{
		URL:   absoluteURL(y.config.BaseURL, a.Href),
		Text:  a.Text,
		Cells: a.Cells,
	}
	if len(a.Cells) > 3 {
		row.SizeCell = a.Cells[3]
	}

	accepted, ok := filter.Accept(row)
	if !ok {
		return TournamentReference{}, false
	}

	name := strings.TrimSpace(a.Label)
	if name == "" && len(a.Cells) > 0 {
		name = strings.TrimSpace(a.Cells[0])
	}
	if name == "" {
		name = row.URL
	}

	return TournamentReference{
		URL:     row.URL,
		Name:    name,
		Tier:    ClassifyEvent(name, tier.Label),
		Country: UnknownCountry,
		Players: accepted.Players,
		Date:    accepted.Date.Format("2006-01-02"),
		Source:  y.Name(),
	}, true
}

// FetchParticipants reads the result table of a tournament page. Each row
// has place, player and deck cells; the decklist link is the row itself
// when the row is an anchor, otherwise the anchor in the deck cell.
func (y *YGOProDeck) FetchParticipants(ctx context.Context, ref TournamentReference) (table *ParticipantTable, err error) {
	ctx, span := tracer.Start(ctx, "ygoprodeck.FetchParticipants")
	span.SetAttributes(attribute.String("url", ref.URL))
	defer func() { endSpan(span, err) }()

	doc, err := fetchDocument(ctx, y.client, "fetch participants", ref.URL)
	if err != nil {
		return nil, err
	}

	container := doc.Find(participantContainer)
	if container.Length() == 0 {
		return nil, &ParseError{URL: ref.URL, Selector: participantContainer}
	}

	table = &ParticipantTable{EventName: ref.Name}
	container.Find(participantRows).Each(func(_ int, s *goquery.Selection) {
		cells := s.Find(participantCells)
		if cells.Length() < 3 {
			return
		}

		row := ParticipantRow{
			Placement: strings.TrimSpace(cells.Eq(0).Text()),
			Player:    strings.TrimSpace(cells.Eq(1).Text()),
			Archetype: strings.TrimSpace(cells.Eq(2).Text()),
		}

		var href string
		if goquery.NodeName(s) == "a" {
			href = s.AttrOr("href", "")
		} else {
			href = cells.Eq(2).Find("a").First().AttrOr("href", "")
		}
		if strings.Contains(href, "deck/") {
			row.Decklist = &DecklistRef{URL: absoluteURL(y.config.BaseURL, href)}
		}

		table.Rows = append(table.Rows, row)
	})

	y.logger.Debug("Participants parsed", "event", ref.Name, "rows", len(table.Rows))
	return table, nil
}

// FetchDecklist reads the main, extra and side sections of a deck page.
// Every card image counts as one copy. A page with no section at all is
// reported as an empty fetch.
func (y *YGOProDeck) FetchDecklist(ctx context.Context, ref DecklistRef) (deck *Decklist, err error) {
	if ref.Inline != nil {
		return NormalizeDecklist(ref.Inline), nil
	}

	ctx, span := tracer.Start(ctx, "ygoprodeck.FetchDecklist")
	span.SetAttributes(attribute.String("url", ref.URL))
	defer func() { endSpan(span, err) }()

	doc, err := fetchDocument(ctx, y.client, "fetch decklist", ref.URL)
	if err != nil {
		return nil, err
	}

	sections := map[Zone]string{
		ZoneMain:  "div#main_deck",
		ZoneExtra: "div#extra_deck",
		ZoneSide:  "div#side_deck",
	}

	deck = &Decklist{}
	found := 0
	for zone, selector := range sections {
		section := doc.Find(selector)
		if section.Length() == 0 {
			continue
		}
		found++

		var raw []RawCard
		section.Find(cardImageSelector).Each(func(_ int, img *goquery.Selection) {
			image := img.AttrOr("data-src", "")
			if image == "" {
				image = img.AttrOr("src", "")
			}
			raw = append(raw, RawCard{
				Name:   img.AttrOr("data-cardname", ""),
				Amount: 1,
				Image:  absoluteURL(y.config.BaseURL, image),
			})
		})

		switch zone {
		case ZoneMain:
			deck.Main = GroupCards(raw)
		case ZoneExtra:
			deck.Extra = GroupCards(raw)
		case ZoneSide:
			deck.Side = GroupCards(raw)
		}
	}

	if found == 0 {
		return nil, &FetchError{Op: "fetch decklist", URL: ref.URL, Kind: KindEmpty}
	}
	return deck, nil
}
