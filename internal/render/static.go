package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// StaticConfig configures the static renderer.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// DefaultStaticConfig returns default configuration.
func DefaultStaticConfig() *StaticConfig {
	return &StaticConfig{
		UserAgent: "Mozilla/5.0",
		Timeout:   30 * time.Second,
	}
}

// Static is a Browser that fetches server-rendered HTML and queries it with
// goquery. It runs no scripts: select changes, clicks and scrolling have no
// effect, so it only sees what the server sends on first load.
type Static struct {
	client *resty.Client
}

// NewStatic creates a static renderer.
func NewStatic(config *StaticConfig) *Static {
	if config == nil {
		config = DefaultStaticConfig()
	}

	client := resty.New()
	client.SetTimeout(config.Timeout)
	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}
	return &Static{client: client}
}

// NewPage returns an empty page.
func (s *Static) NewPage(ctx context.Context) (Page, error) {
	return &staticPage{client: s.client}, nil
}

// Close is a no-op.
func (s *Static) Close() error {
	return nil
}

type staticPage struct {
	client *resty.Client
	url    string
	doc    *goquery.Document
}

func (p *staticPage) Navigate(ctx context.Context, url string) error {
	res, err := p.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if res.IsError() {
		return fmt.Errorf("navigate %s: HTTP %d", url, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}
	p.url = url
	p.doc = doc
	return nil
}

func (p *staticPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if p.doc == nil || p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrSelectorTimeout, selector)
	}
	return nil
}

func (p *staticPage) SelectOption(ctx context.Context, selector, value string) (bool, error) {
	if p.doc == nil {
		return false, nil
	}
	found := false
	p.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Find(fmt.Sprintf(`option[value=%q]`, value)).Length() > 0 {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

func (p *staticPage) Click(ctx context.Context, selector, text string) (bool, error) {
	if p.doc == nil {
		return false, nil
	}
	found := false
	p.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.Contains(s.Text(), text)
		return !found
	})
	return found, nil
}

func (p *staticPage) ScrollToBottom(ctx context.Context) error {
	return ctx.Err()
}

func (p *staticPage) Count(ctx context.Context, selector string) (int, error) {
	if p.doc == nil {
		return 0, nil
	}
	return p.doc.Find(selector).Length(), nil
}

func (p *staticPage) Anchors(ctx context.Context, selector string) ([]Anchor, error) {
	if p.doc == nil {
		return nil, nil
	}

	var anchors []Anchor
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		a := Anchor{Href: s.AttrOr("href", ""), Label: strings.TrimSpace(s.Text())}
		tr := s.Closest("tr")
		if tr.Length() == 0 {
			a.Text = strings.TrimSpace(s.Text())
			anchors = append(anchors, a)
			return
		}
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			a.Cells = append(a.Cells, strings.TrimSpace(td.Text()))
		})
		a.Text = strings.Join(a.Cells, "\t")
		anchors = append(anchors, a)
	})
	return anchors, nil
}

func (p *staticPage) Tiles(ctx context.Context, selector string, fields ...string) ([]Tile, error) {
	if p.doc == nil {
		return nil, nil
	}

	var tiles []Tile
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		t := Tile{
			Href:   s.AttrOr("href", ""),
			Text:   strings.TrimSpace(s.Text()),
			Fields: make(map[string]string, len(fields)),
		}
		if next := s.Next(); next.Length() > 0 {
			t.Next = strings.TrimSpace(next.Text())
			t.NextTag = goquery.NodeName(next)
		}
		for _, f := range fields {
			if m := s.Find(f).First(); m.Length() > 0 {
				t.Fields[f] = strings.TrimSpace(m.Text())
			}
		}
		tiles = append(tiles, t)
	})
	return tiles, nil
}

func (p *staticPage) Close() error {
	p.doc = nil
	return nil
}
