package canon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ramonehamilton/duelmeta/internal/version"
)

// DefaultCardInfoURL is the public card database endpoint.
const DefaultCardInfoURL = "https://db.ygoprodeck.com/api/v7/cardinfo.php"

type cardInfoResponse struct {
	Data []Entry `json:"data"`
}

// FetchIndex downloads the full card list from a cardinfo endpoint. An
// empty url uses DefaultCardInfoURL.
func FetchIndex(ctx context.Context, url string, timeout time.Duration) (*Index, error) {
	if url == "" {
		url = DefaultCardInfoURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var body cardInfoResponse
	res, err := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", version.UserAgent()).
		R().
		SetContext(ctx).
		SetResult(&body).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch card database: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch card database: status %d", res.StatusCode())
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("fetch card database: no cards returned")
	}
	return NewIndex(body.Data), nil
}
