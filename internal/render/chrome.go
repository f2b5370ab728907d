package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeConfig configures the headless browser.
type ChromeConfig struct {
	// ExecPath overrides the Chrome binary. Empty means auto-detect.
	ExecPath string

	// UserAgent is sent with every navigation.
	UserAgent string

	// Settle is how long to wait after a filter change or scroll for the
	// page to reload its content.
	Settle time.Duration

	// NavigateTimeout bounds each page load.
	NavigateTimeout time.Duration

	// Headless runs without a visible window.
	Headless bool
}

// DefaultChromeConfig returns default configuration.
func DefaultChromeConfig() *ChromeConfig {
	return &ChromeConfig{
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Settle:          2 * time.Second,
		NavigateTimeout: 60 * time.Second,
		Headless:        true,
	}
}

// Chrome is a Browser backed by a headless Chrome instance.
type Chrome struct {
	config   *ChromeConfig
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewChrome creates a browser allocator. Chrome itself starts lazily with
// the first page.
func NewChrome(config *ChromeConfig) *Chrome {
	if config == nil {
		config = DefaultChromeConfig()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Chrome{config: config, allocCtx: allocCtx, cancel: cancel}
}

// NewPage opens a new tab.
func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.allocCtx)
	p := &chromePage{tab: tabCtx, cancel: cancel, config: c.config}
	if err := p.run(ctx, 0); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return p, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

type chromePage struct {
	tab    context.Context
	cancel context.CancelFunc
	config *ChromeConfig
}

// run executes actions on the tab, bounded by ctx and an optional timeout.
// Cancelling the derived context aborts the actions without closing the tab.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.config.NavigateTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrSelectorTimeout, selector)
	}
	if err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) SelectOption(ctx context.Context, selector, value string) (bool, error) {
	expr := fmt.Sprintf(`(() => {
	const value = %s;
	for (const el of document.querySelectorAll(%s)) {
		if (el.querySelector('option[value="' + value + '"]')) {
			el.value = value;
			el.dispatchEvent(new Event('change'));
			return true;
		}
	}
	return false;
})()`, jsString(value), jsString(selector))

	var found bool
	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &found), chromedp.Sleep(p.config.Settle)); err != nil {
		return false, fmt.Errorf("select %s=%s: %w", selector, value, err)
	}
	return found, nil
}

func (p *chromePage) Click(ctx context.Context, selector, text string) (bool, error) {
	expr := fmt.Sprintf(`(() => {
	const text = %s;
	const matches = Array.from(document.querySelectorAll(%s)).filter(el => el.innerText.includes(text));
	const el = matches.find(m => !matches.some(o => o !== m && m.contains(o)));
	if (!el) {
		return false;
	}
	(el.querySelector('input[type="checkbox"]') || el).click();
	return true;
})()`, jsString(text), jsString(selector))

	var found bool
	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &found), chromedp.Sleep(p.config.Settle)); err != nil {
		return false, fmt.Errorf("click %s %q: %w", selector, text, err)
	}
	return found, nil
}

func (p *chromePage) ScrollToBottom(ctx context.Context) error {
	var ok bool
	expr := `(() => { window.scrollTo(0, document.body.scrollHeight); return true; })()`
	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &ok), chromedp.Sleep(p.config.Settle)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (p *chromePage) Count(ctx context.Context, selector string) (int, error) {
	var n int
	expr := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return n, nil
}

func (p *chromePage) Anchors(ctx context.Context, selector string) ([]Anchor, error) {
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => {
	const tr = el.closest('tr');
	const cells = tr ? Array.from(tr.querySelectorAll('td')).map(td => td.innerText) : [];
	return { href: el.getAttribute('href') || '', label: el.innerText, text: tr ? tr.innerText : el.innerText, cells: cells };
})`, jsString(selector))

	var anchors []Anchor
	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &anchors)); err != nil {
		return nil, fmt.Errorf("read anchors %s: %w", selector, err)
	}
	return anchors, nil
}

func (p *chromePage) Tiles(ctx context.Context, selector string, fields ...string) ([]Tile, error) {
	if fields == nil {
		fields = []string{}
	}
	sub, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => {
	const fields = {};
	for (const f of %s) {
		const m = el.querySelector(f);
		if (m) {
			fields[f] = m.innerText.trim();
		}
	}
	const next = el.nextElementSibling;
	return {
		href: el.getAttribute('href') || '',
		text: el.innerText.trim(),
		next: next ? next.innerText.trim() : '',
		nextTag: next ? next.tagName.toLowerCase() : '',
		fields: fields,
	};
})`, jsString(selector), sub)

	var tiles []Tile
	if err := p.run(ctx, 0, chromedp.Evaluate(expr, &tiles)); err != nil {
		return nil, fmt.Errorf("read tiles %s: %w", selector, err)
	}
	return tiles, nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
