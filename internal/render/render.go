// Package render provides the page-render capability used by discovery and
// the tier list: navigate to a page, wait for a selector, drive select
// filters and tabs, scroll to trigger lazy loading, and read anchors or
// tiles with their text.
package render

import (
	"context"
	"errors"
	"time"
)

// ErrSelectorTimeout is returned when a waited-for selector never appears.
var ErrSelectorTimeout = errors.New("selector did not appear")

// Anchor is a link read from a rendered page. Text and Cells come from the
// closest enclosing table row when there is one, otherwise Text is the
// anchor's own text.
type Anchor struct {
	Href  string   `json:"href"`
	Label string   `json:"label"` // the anchor's own text
	Text  string   `json:"text"`
	Cells []string `json:"cells"`
}

// Tile is a block element read from a rendered page. Fields maps each
// requested sub-selector to the text of its first match inside the element;
// selectors without a match are absent. Next and NextTag describe the
// element's next sibling element.
type Tile struct {
	Href    string            `json:"href"`
	Text    string            `json:"text"`
	Next    string            `json:"next"`
	NextTag string            `json:"nextTag"` // lower case
	Fields  map[string]string `json:"fields"`
}

// Field returns the text of the sub-selector, or "".
func (t Tile) Field(selector string) string {
	return t.Fields[selector]
}

// Page is one rendered browser tab.
type Page interface {
	// Navigate loads url and replaces the current document.
	Navigate(ctx context.Context, url string) error

	// WaitFor blocks until selector matches an element or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// SelectOption sets the first element matching selector that offers an
	// option with the given value, and fires its change event. It reports
	// whether such an element was found.
	SelectOption(ctx context.Context, selector, value string) (bool, error)

	// Click clicks the innermost element matching selector whose text
	// contains text; a checkbox inside it takes the click instead. It reports
	// whether such an element was found.
	Click(ctx context.Context, selector, text string) (bool, error)

	// ScrollToBottom scrolls the document to its end.
	ScrollToBottom(ctx context.Context) error

	// Count returns the number of elements matching selector.
	Count(ctx context.Context, selector string) (int, error)

	// Anchors returns every element matching selector as an Anchor.
	Anchors(ctx context.Context, selector string) ([]Anchor, error)

	// Tiles returns every element matching selector as a Tile, reading the
	// given sub-selectors into Fields.
	Tiles(ctx context.Context, selector string, fields ...string) ([]Tile, error)

	// Close releases the tab.
	Close() error
}

// Browser opens pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// ScrollUntilStable scrolls p repeatedly until the number of elements
// matching selector is non-zero and unchanged across two consecutive
// attempts, or attempts runs out. It returns the last observed count.
func ScrollUntilStable(ctx context.Context, p Page, selector string, attempts int) (int, error) {
	if attempts <= 0 {
		attempts = 1
	}

	previous := -1
	count := 0
	for i := 0; i < attempts; i++ {
		if err := p.ScrollToBottom(ctx); err != nil {
			return count, err
		}
		n, err := p.Count(ctx, selector)
		if err != nil {
			return count, err
		}
		count = n
		if count == previous && count > 0 {
			break
		}
		previous = count
	}
	return count, nil
}
