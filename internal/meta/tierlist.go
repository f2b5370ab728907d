package meta

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ramonehamilton/duelmeta/internal/render"
)

const (
	deckTypeSelector = ".deck-type-container"
	cardTileSelector = "a.img-button"
	techRowSelector  = "div.columns.is-align-items-center.is-mobile"
	techGridSelector = "div.columns.is-multiline a.column"
	techLinkSelector = "a[href^='/cards/']"
	labelSelector    = ".label"
	subLabelSelector = ".bottom-sub-label"

	maxTabCards  = 30
	maxTechCards = 40
)

var (
	countPattern   = regexp.MustCompile(`\((\d+)\)`)
	percentPattern = regexp.MustCompile(`([\d.]+)%`)
	techPattern    = regexp.MustCompile(`\((\d+)\)\s*([\d.]+)%\s*\|\s*([\d.]+)`)
)

// TierDeck is one archetype of the tier list breakdown.
type TierDeck struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// CardUsage is a card of a tier list card tab. Usage is the label shown
// under the card, kept as the site prints it.
type CardUsage struct {
	Name  string `json:"name"`
	Usage string `json:"usage"`
}

// TierList is the yugiohmeta tier list: the archetype breakdown and the most
// played main deck techs and side deck cards.
type TierList struct {
	Decks []TierDeck  `json:"decks"`
	Techs []CardUsage `json:"techs"`
	Side  []CardUsage `json:"side"`
}

// TechCard is a row of the techs view. Average is the mean number of copies
// among the decks that play the card.
type TechCard struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
	Average float64 `json:"average"`
}

// TechReport is the techs view over all events and over T3 events only.
type TechReport struct {
	All []TechCard `json:"all"`
	T3  []TechCard `json:"t3"`
}

// ParseTierStats reads a breakdown label such as "(75) 20.44%". A missing
// count or percentage reads as zero; ok is false when neither is present.
func ParseTierStats(s string) (count int, percent float64, ok bool) {
	if m := countPattern.FindStringSubmatch(s); m != nil {
		count, _ = strconv.Atoi(m[1])
		ok = true
	}
	if m := percentPattern.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			percent = v
			ok = true
		}
	}
	return count, percent, ok
}

// ParseTechStats reads a techs label such as "(120) 35.2% | 2.4".
func ParseTechStats(name, s string) (TechCard, bool) {
	m := techPattern.FindStringSubmatch(s)
	if m == nil {
		return TechCard{}, false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return TechCard{}, false
	}
	percent, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return TechCard{}, false
	}
	avg, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return TechCard{}, false
	}
	return TechCard{Name: name, Count: count, Percent: percent, Average: avg}, true
}

func (m *YugiohMeta) tierListURL() string {
	return absoluteURL(m.config.BaseURL, m.config.TierListPath)
}

func (m *YugiohMeta) openPage(ctx context.Context, url string) (render.Page, error) {
	if m.browser == nil {
		return nil, fmt.Errorf("no renderer configured")
	}
	page, err := m.browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.Navigate(ctx, url); err != nil {
		page.Close()
		return nil, &FetchError{Op: "open tier list", URL: url, Kind: KindUnreachable, Err: err}
	}
	return page, nil
}

// TierList reads the tier list page. A section that fails to load is logged
// and left empty; only a failed page load is an error.
func (m *YugiohMeta) TierList(ctx context.Context) (list *TierList, err error) {
	url := m.tierListURL()
	ctx, span := tracer.Start(ctx, "yugiohmeta.TierList")
	span.SetAttributes(attribute.String("url", url))
	defer func() { endSpan(span, err) }()

	page, err := m.openPage(ctx, url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	list = &TierList{}
	if list.Decks, err = m.tierDecks(ctx, page); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Warn("Tier list decks unavailable", "url", url, "error", err)
	}
	for _, tab := range []struct {
		name string
		dst  *[]CardUsage
	}{
		{"Techs", &list.Techs},
		{"Side-Deck", &list.Side},
	} {
		cards, err := m.cardTab(ctx, page, tab.name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Warn("Tier list tab unavailable", "tab", tab.name, "error", err)
			continue
		}
		*tab.dst = cards
	}

	span.SetAttributes(attribute.Int("decks", len(list.Decks)), attribute.Int("techs", len(list.Techs)))
	m.logger.Debug("Tier list read", "decks", len(list.Decks), "techs", len(list.Techs), "side", len(list.Side))
	return list, nil
}

// tierDecks reads the archetype breakdown. Top tier entries carry their
// stats in the following h3 instead of a sub-label.
func (m *YugiohMeta) tierDecks(ctx context.Context, page render.Page) ([]TierDeck, error) {
	if err := page.WaitFor(ctx, deckTypeSelector, m.config.WaitTimeout); err != nil {
		return nil, err
	}
	tiles, err := page.Tiles(ctx, deckTypeSelector, labelSelector, subLabelSelector)
	if err != nil {
		return nil, err
	}

	decks := make([]TierDeck, 0, len(tiles))
	for _, t := range tiles {
		stats := t.Field(subLabelSelector)
		if stats == "" && t.NextTag == "h3" {
			stats = t.Next
		}
		if stats == "" {
			continue
		}
		count, percent, _ := ParseTierStats(stats)
		name := t.Field(labelSelector)
		if name == "" {
			name = "Unknown"
		}
		decks = append(decks, TierDeck{Name: name, Count: count, Percent: percent})
	}
	return decks, nil
}

// cardTab switches to the named tab and reads its card tiles.
func (m *YugiohMeta) cardTab(ctx context.Context, page render.Page, tab string) ([]CardUsage, error) {
	found, err := page.Click(ctx, "li", tab)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &ParseError{URL: m.tierListURL(), Selector: "li:" + tab}
	}
	if err := page.WaitFor(ctx, cardTileSelector, 5*time.Second); err != nil && !errors.Is(err, render.ErrSelectorTimeout) {
		return nil, err
	}

	tiles, err := page.Tiles(ctx, cardTileSelector, labelSelector, subLabelSelector)
	if err != nil {
		return nil, err
	}
	cards := make([]CardUsage, 0, min(len(tiles), maxTabCards))
	for _, t := range tiles {
		if len(cards) == maxTabCards {
			break
		}
		name := t.Field(labelSelector)
		if name == "" {
			continue
		}
		cards = append(cards, CardUsage{Name: name, Usage: t.Field(subLabelSelector)})
	}
	return cards, nil
}

// Techs reads the techs view twice: over all events, then with the T3
// events filter switched on. T3 stays empty when the filter is missing.
func (m *YugiohMeta) Techs(ctx context.Context) (report *TechReport, err error) {
	url := m.tierListURL() + "#techs"
	ctx, span := tracer.Start(ctx, "yugiohmeta.Techs")
	span.SetAttributes(attribute.String("url", url))
	defer func() { endSpan(span, err) }()

	page, err := m.openPage(ctx, url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if _, err := page.Click(ctx, "li", "Techs"); err != nil {
		return nil, err
	}

	report = &TechReport{}
	if report.All, err = m.techView(ctx, page); err != nil {
		return nil, err
	}

	found, err := page.Click(ctx, "div", "T3 Events Only")
	if err != nil {
		return nil, err
	}
	if !found {
		m.logger.Warn("T3 events filter not found", "url", url)
		return report, nil
	}
	if report.T3, err = m.techView(ctx, page); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("all", len(report.All)), attribute.Int("t3", len(report.T3)))
	return report, nil
}

// techView reads the list rows and grid tiles of the techs view, keeping the
// first occurrence of each card.
func (m *YugiohMeta) techView(ctx context.Context, page render.Page) ([]TechCard, error) {
	if _, err := render.ScrollUntilStable(ctx, page, techRowSelector, m.config.ScrollAttempts); err != nil {
		return nil, err
	}

	var cards []TechCard
	rows, err := page.Tiles(ctx, techRowSelector, techLinkSelector, techLinkSelector+" "+labelSelector, "h3")
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if _, ok := r.Fields[techLinkSelector]; !ok {
			continue
		}
		name := r.Field(techLinkSelector + " " + labelSelector)
		if name == "" {
			name = "Unknown"
		}
		if c, ok := ParseTechStats(name, r.Field("h3")); ok {
			cards = append(cards, c)
		}
	}

	grid, err := page.Tiles(ctx, techGridSelector, labelSelector, subLabelSelector)
	if err != nil {
		return nil, err
	}
	for _, g := range grid {
		name := g.Field(labelSelector)
		if name == "" {
			continue
		}
		if c, ok := ParseTechStats(name, g.Field(subLabelSelector)); ok {
			cards = append(cards, c)
		}
	}

	seen := make(map[string]bool, len(cards))
	unique := make([]TechCard, 0, len(cards))
	for _, c := range cards {
		key := strings.ToLower(c.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, c)
		if len(unique) == maxTechCards {
			break
		}
	}
	return unique, nil
}
