package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramonehamilton/duelmeta/internal/render"
)

const roundupLinkSelector = "a[href*='/top-decks/']"

// YugiohMetaConfig configures the yugiohmeta adapter.
type YugiohMetaConfig struct {
	// BaseURL is the site root.
	BaseURL string

	// APIPath is the top-decks endpoint.
	APIPath string

	// DeckPathPrefix is stripped from browser deck URLs before lookup.
	DeckPathPrefix string

	// TierListPath is the tier list page, relative to BaseURL.
	TierListPath string

	// RoundupURLs are pages whose deck links seed discovery.
	RoundupURLs []string

	// DeckURLs are deck pages that seed discovery directly.
	DeckURLs []string

	// EventLimit caps the decks requested per event.
	EventLimit int

	// ScrollAttempts bounds lazy loading on roundup pages.
	ScrollAttempts int

	// WaitTimeout bounds waiting for roundup links.
	WaitTimeout time.Duration

	// RequestTimeout is the HTTP request timeout.
	RequestTimeout time.Duration

	// RateLimitMs is minimum milliseconds between requests.
	RateLimitMs int

	// Workers is the decklist fetch concurrency.
	Workers int

	// UserAgent is sent with every request.
	UserAgent string

	Logger *slog.Logger
}

// DefaultYugiohMetaConfig returns default configuration.
func DefaultYugiohMetaConfig() *YugiohMetaConfig {
	return &YugiohMetaConfig{
		BaseURL:        "https://www.yugiohmeta.com",
		APIPath:        "/api/v1/top-decks",
		DeckPathPrefix: "/top-decks",
		TierListPath:   "/tier-list",
		EventLimit:     50,
		ScrollAttempts: 5,
		WaitTimeout:    10 * time.Second,
		RequestTimeout: 10 * time.Second,
		RateLimitMs:    250,
		Workers:        4,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// YugiohMeta reads the yugiohmeta top-decks API. Participant listings carry
// the decklists inline.
type YugiohMeta struct {
	config  *YugiohMetaConfig
	browser render.Browser
	client  *resty.Client
	logger  *slog.Logger
}

// NewYugiohMeta creates the adapter. The browser is only needed to harvest
// links from roundup pages.
func NewYugiohMeta(config *YugiohMetaConfig, browser render.Browser) *YugiohMeta {
	if config == nil {
		config = DefaultYugiohMetaConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &YugiohMeta{
		config:  config,
		browser: browser,
		client: newHTTPClient(clientOptions{
			BaseURL:     config.BaseURL,
			UserAgent:   config.UserAgent,
			Timeout:     config.RequestTimeout,
			RateLimitMs: config.RateLimitMs,
			Headers: map[string]string{
				"Accept":  "application/json",
				"Referer": strings.TrimRight(config.BaseURL, "/") + "/",
			},
		}),
		logger: logger,
	}
}

// Name returns the adapter name.
func (m *YugiohMeta) Name() string {
	return SourceYugiohMeta
}

// Workers returns the decklist fetch concurrency.
func (m *YugiohMeta) Workers() int {
	if m.config.Workers < 1 {
		return 1
	}
	return m.config.Workers
}

// flexNumber decodes a JSON number, a numeric string or null.
type flexNumber struct {
	Raw   string
	Value float64
	Valid bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = flexNumber{}
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	raw = strings.TrimSpace(raw)

	v, err := strconv.ParseFloat(raw, 64)
	*n = flexNumber{Raw: raw, Value: v, Valid: err == nil}
	return nil
}

// flexString decodes a string, or an object carrying a username or name.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '{':
		var obj struct {
			Username string `json:"username"`
			Name     string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Username != "" {
			*s = flexString(obj.Username)
		} else {
			*s = flexString(obj.Name)
		}
		return nil
	}

	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = flexString(v)
	return nil
}

type apiCard struct {
	Amount flexNumber `json:"amount"`
	Card   struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	} `json:"card"`
}

type apiDeck struct {
	ID       string     `json:"_id"`
	URL      string     `json:"url"`
	Author   flexString `json:"author"`
	DeckType struct {
		Name string `json:"name"`
	} `json:"deckType"`
	Placement flexNumber `json:"tournamentPlacement"`
	Event     struct {
		ID      string `json:"_id"`
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"event"`
	Main  []apiCard `json:"main"`
	Extra []apiCard `json:"extra"`
	Side  []apiCard `json:"side"`
}

// placement renders the numeric placement as a label, keeping the raw text
// when it is not numeric.
func (d apiDeck) placement() string {
	switch {
	case d.Placement.Valid:
		return FormatRank(d.Placement.Value)
	case d.Placement.Raw != "":
		return d.Placement.Raw
	}
	return UnknownPlacement
}

func (d apiDeck) decklist() *Decklist {
	return &Decklist{
		Main:  groupAPICards(d.Main),
		Extra: groupAPICards(d.Extra),
		Side:  groupAPICards(d.Side),
	}
}

// groupAPICards drops entries whose amount is not a positive integer.
func groupAPICards(cards []apiCard) CardGroup {
	raw := make([]RawCard, 0, len(cards))
	for _, c := range cards {
		if !c.Amount.Valid || c.Amount.Value != float64(int(c.Amount.Value)) {
			continue
		}
		raw = append(raw, RawCard{Name: c.Card.Name, Amount: int(c.Amount.Value), Image: c.Card.Image})
	}
	return GroupCards(raw)
}

// query calls the top-decks endpoint.
func (m *YugiohMeta) query(ctx context.Context, op string, params map[string]string) ([]apiDeck, error) {
	res, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(m.config.APIPath)
	target := m.config.APIPath
	if err != nil {
		return nil, &FetchError{Op: op, URL: target, Kind: KindUnreachable, Err: err}
	}
	if res.IsError() {
		return nil, &FetchError{Op: op, URL: target, Kind: KindUnreachable, StatusCode: res.StatusCode()}
	}

	var decks []apiDeck
	if err := json.Unmarshal(res.Body(), &decks); err != nil {
		return nil, &FetchError{Op: op, URL: target, Kind: KindUnreachable, Err: fmt.Errorf("decode response: %w", err)}
	}
	return decks, nil
}

// NormalizeDeckPath turns a deck page URL or path into the form the API
// expects: the URL path with the browser prefix removed, one leading slash
// and one trailing slash.
func NormalizeDeckPath(raw, prefix string) string {
	path := strings.TrimSpace(raw)
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		path = u.Path
	}

	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" && strings.HasPrefix(path, prefix) {
		rest := path[len(prefix):]
		if rest == "" || strings.HasPrefix(rest, "/") {
			path = rest
		}
	}

	path = "/" + strings.Trim(path, "/") + "/"
	if path == "//" {
		return "/"
	}
	return path
}

// Resolve maps a deck URL onto its event identifier and name.
func (m *YugiohMeta) Resolve(ctx context.Context, deckURL string) (id, name string, err error) {
	ctx, span := tracer.Start(ctx, "yugiohmeta.Resolve")
	span.SetAttributes(attribute.String("url", deckURL))
	defer func() { endSpan(span, err) }()

	path := NormalizeDeckPath(deckURL, m.config.DeckPathPrefix)
	decks, err := m.query(ctx, "resolve event", map[string]string{"url": path, "limit": "1"})
	if err != nil {
		return "", "", err
	}
	if len(decks) == 0 {
		return "", "", &ResolutionError{URL: deckURL, Reason: "no deck found"}
	}
	if decks[0].Event.ID == "" {
		return "", "", &ResolutionError{URL: deckURL, Reason: "deck has no event"}
	}
	return decks[0].Event.ID, decks[0].Event.Name, nil
}

// FetchParticipants resolves the reference URL to its event and lists every
// deck of that event.
func (m *YugiohMeta) FetchParticipants(ctx context.Context, ref TournamentReference) (table *ParticipantTable, err error) {
	ctx, span := tracer.Start(ctx, "yugiohmeta.FetchParticipants")
	span.SetAttributes(attribute.String("url", ref.URL))
	defer func() { endSpan(span, err) }()

	eventID, eventName, err := m.Resolve(ctx, ref.URL)
	if err != nil {
		return nil, err
	}

	limit := m.config.EventLimit
	if limit <= 0 {
		limit = 50
	}
	decks, err := m.query(ctx, "fetch participants", map[string]string{
		"event": eventID,
		"limit": strconv.Itoa(limit),
		"sort":  "-created",
	})
	if err != nil {
		return nil, err
	}

	table = &ParticipantTable{EventName: eventName}
	if table.EventName == "" {
		table.EventName = ref.Name
	}
	for _, d := range decks {
		if table.Country == "" && d.Event.Country != "" {
			table.Country = d.Event.Country
		}

		var link string
		if d.URL != "" {
			link = absoluteURL(m.config.BaseURL, strings.TrimRight(m.config.DeckPathPrefix, "/")+NormalizeDeckPath(d.URL, m.config.DeckPathPrefix))
		}
		table.Rows = append(table.Rows, ParticipantRow{
			Placement: d.placement(),
			Player:    string(d.Author),
			Archetype: d.DeckType.Name,
			Decklist:  &DecklistRef{URL: link, Inline: d.decklist()},
		})
	}

	coverage := AnalyzeCoverage(table.Placements())
	table.Coverage = &coverage

	m.logger.Debug("Event decks listed", "event", table.EventName, "decks", len(table.Rows))
	return table, nil
}

// FetchDecklist returns the inline decklist when present, otherwise it
// looks the deck up by URL. A deck with no cards in any zone is a KindEmpty
// FetchError either way.
func (m *YugiohMeta) FetchDecklist(ctx context.Context, ref DecklistRef) (deck *Decklist, err error) {
	if ref.Inline != nil {
		if d := NormalizeDecklist(ref.Inline); !d.Empty() {
			return d, nil
		}
		return nil, &FetchError{Op: "fetch decklist", URL: ref.URL, Kind: KindEmpty}
	}

	ctx, span := tracer.Start(ctx, "yugiohmeta.FetchDecklist")
	span.SetAttributes(attribute.String("url", ref.URL))
	defer func() { endSpan(span, err) }()

	path := NormalizeDeckPath(ref.URL, m.config.DeckPathPrefix)
	decks, err := m.query(ctx, "fetch decklist", map[string]string{"url": path, "limit": "1"})
	if err != nil {
		return nil, err
	}
	if len(decks) == 0 || decks[0].decklist().Empty() {
		return nil, &FetchError{Op: "fetch decklist", URL: ref.URL, Kind: KindEmpty}
	}
	return decks[0].decklist(), nil
}

// Discover builds references from the configured deck URLs and the deck
// links found on roundup pages. The event slug identifies each reference, so
// several decks of the same event collapse into one. The API exposes no
// event dates, so no lookback window applies.
func (m *YugiohMeta) Discover(ctx context.Context, opts DiscoverOptions) (refs []TournamentReference, err error) {
	ctx, span := tracer.Start(ctx, "yugiohmeta.Discover")
	defer func() { endSpan(span, err) }()

	seeds := append([]string(nil), m.config.DeckURLs...)
	failed := 0
	for _, roundup := range m.config.RoundupURLs {
		links, err := m.harvest(ctx, roundup)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			m.logger.Warn("Roundup page failed", "url", roundup, "error", err)
			continue
		}
		seeds = append(seeds, links...)
	}

	if len(seeds) == 0 && failed > 0 && failed == len(m.config.RoundupURLs) {
		return nil, &DiscoveryError{Source: m.Name(), Err: fmt.Errorf("all %d roundup pages failed", failed)}
	}

	excluded := opts.Policy.Exclude
	for _, seed := range seeds {
		link := absoluteURL(m.config.BaseURL, seed)
		slug := m.eventSlug(link)
		if slug == "" {
			continue
		}
		if containsAnyFold(slug, excluded) {
			continue
		}
		refs = append(refs, TournamentReference{
			ID:      slug,
			URL:     link,
			Name:    slug,
			Tier:    ClassifyEvent(slug, ""),
			Country: UnknownCountry,
			Source:  m.Name(),
		})
	}

	span.SetAttributes(attribute.Int("tournaments", len(refs)))
	return refs, nil
}

// eventSlug returns the first path segment after the deck prefix.
func (m *YugiohMeta) eventSlug(link string) string {
	path := NormalizeDeckPath(link, m.config.DeckPathPrefix)
	segment, _, _ := strings.Cut(strings.Trim(path, "/"), "/")
	return segment
}

// harvest renders a roundup page and returns its deck links.
func (m *YugiohMeta) harvest(ctx context.Context, roundup string) ([]string, error) {
	if m.browser == nil {
		return nil, fmt.Errorf("no renderer configured")
	}

	page, err := m.browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := page.Navigate(ctx, roundup); err != nil {
		return nil, err
	}
	if err := page.WaitFor(ctx, roundupLinkSelector, m.config.WaitTimeout); err != nil {
		return nil, err
	}
	if _, err := render.ScrollUntilStable(ctx, page, roundupLinkSelector, m.config.ScrollAttempts); err != nil {
		return nil, err
	}

	anchors, err := page.Anchors(ctx, roundupLinkSelector)
	if err != nil {
		return nil, err
	}

	links := make([]string, 0, len(anchors))
	for _, a := range anchors {
		if a.Href == "" {
			continue
		}
		links = append(links, absoluteURL(m.config.BaseURL, a.Href))
	}
	return links, nil
}

func containsAnyFold(s string, tokens []string) bool {
	lower := strings.ToLower(s)
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
