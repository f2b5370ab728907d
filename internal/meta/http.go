package meta

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("duelmeta/meta")

// clientOptions configures the shared HTTP client of an adapter.
type clientOptions struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	RateLimitMs int
	Cloudflare  bool
	Headers     map[string]string
}

// newHTTPClient builds a resty client that waits on a rate limiter before
// every request.
func newHTTPClient(opts clientOptions) *resty.Client {
	client := resty.New()
	if opts.Cloudflare {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeaders(opts.Headers)

	every := time.Duration(opts.RateLimitMs) * time.Millisecond
	limiter := rate.NewLimiter(rate.Every(every), 1)
	if every <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return client
}

// fetchDocument GETs an HTML page and parses it.
func fetchDocument(ctx context.Context, client *resty.Client, op, target string) (*goquery.Document, error) {
	res, err := client.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, &FetchError{Op: op, URL: target, Kind: KindUnreachable, Err: err}
	}
	if res.IsError() {
		return nil, &FetchError{Op: op, URL: target, Kind: KindUnreachable, StatusCode: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, &FetchError{Op: op, URL: target, Kind: KindUnreachable, Err: err}
	}
	return doc, nil
}

// absoluteURL resolves href against base. Unparseable input is returned as is.
func absoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// endSpan records err on span before ending it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
