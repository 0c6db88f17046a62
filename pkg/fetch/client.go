// Package fetch retrieves the product catalog from a WooCommerce-style
// store API, walking its paginated listings concurrently.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/w4lkr/shopsync/pkg/cache"
	"github.com/w4lkr/shopsync/pkg/catalog"
	"github.com/w4lkr/shopsync/pkg/retry"
)

const (
	PRODUCTS_PATH   = "/wp-json/wc/v3/products"
	CATEGORIES_PATH = "/wp-json/wc/v3/products/categories"

	TOTAL_PAGES_HEADER = "X-WP-TotalPages"

	PAYLOAD_MAX_RETRIES     = 3
	PAYLOAD_BACKOFF_SEC     = 2
	SEQUENTIAL_ERROR_BUDGET = 5
	MAX_PROBE_PAGES         = 500

	USER_AGENT = "shopsync (+https://github.com/w4lkr/shopsync)"
)

const (
	cacheKeyProducts   = "products"
	cacheKeyCategories = "categories"
)

// ErrMalformedPayload marks responses that are not the JSON array the
// endpoints are documented to return.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrSourceUnreachable is returned when not even the first listing page
// could be fetched. It is distinct from an empty catalog, which is a valid
// result. Callers switch to the HTML fallback on this error.
var ErrSourceUnreachable = errors.New("source unreachable")

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	// BaseURL is the store root, e.g. https://shop.example.com.
	BaseURL string

	// ConsumerKey and ConsumerSecret are sent as HTTP basic auth when set.
	ConsumerKey    string
	ConsumerSecret string

	PerPage     int
	Concurrency int
	Timeout     time.Duration

	// CacheTTL bounds how long fetched results are reused without hitting
	// the network again. Zero means the default; negative disables the
	// cache.
	CacheTTL time.Duration

	Proxy string
}

func (o *Options) defaults() {
	if o.PerPage <= 0 {
		o.PerPage = 20
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = time.Hour
	}
}

// Client fetches products and categories from one store.
type Client struct {
	http        *retryablehttp.Client
	baseURL     string
	key         string
	secret      string
	perPage     int
	concurrency int

	payloadRetry retry.Policy

	items *cache.Cache[[]catalog.Item]
	cats  *cache.Cache[[]catalog.Category]
}

func NewClient(opts Options) (*Client, error) {
	opts.defaults()
	if opts.BaseURL == "" {
		return nil, errors.New("store base URL is required")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 2 * time.Second
	retryClient.RetryWaitMax = 8 * time.Second
	retryClient.HTTPClient.Timeout = opts.Timeout

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		retryClient.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		http:        retryClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		key:         opts.ConsumerKey,
		secret:      opts.ConsumerSecret,
		perPage:     opts.PerPage,
		concurrency: opts.Concurrency,
		payloadRetry: retry.Policy{
			Attempts: PAYLOAD_MAX_RETRIES,
			Backoff:  retry.Exponential(PAYLOAD_BACKOFF_SEC * time.Second),
			RetryIf:  func(err error) bool { return errors.Is(err, ErrMalformedPayload) },
		},
		items: cache.New[[]catalog.Item](opts.CacheTTL),
		cats:  cache.New[[]catalog.Category](opts.CacheTTL),
	}, nil
}

// InvalidateCache drops cached results so the next call hits the network.
func (c *Client) InvalidateCache() {
	c.items.Purge()
	c.cats.Purge()
}

// fetchPage requests one listing page and returns the raw JSON array plus
// the page count advertised by the store (0 when the header is absent).
// Malformed payloads are retried under the payload policy; transport-level
// retries already happened inside the HTTP client.
func (c *Client) fetchPage(ctx context.Context, path string, page int) ([]byte, int, error) {
	var body []byte
	var totalPages int
	err := c.payloadRetry.Do(ctx, func() error {
		b, tp, err := c.getJSON(ctx, path, page)
		if err != nil {
			return err
		}
		body, totalPages = b, tp
		return nil
	})
	return body, totalPages, err
}

func (c *Client) getJSON(ctx context.Context, path string, page int) ([]byte, int, error) {
	u := fmt.Sprintf("%s%s?page=%d&per_page=%d", c.baseURL, path, page, c.perPage)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.SetBasicAuth(c.key, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%s page %d: unexpected status %d", path, page, resp.StatusCode)
	}
	if !gjson.ValidBytes(b) || !gjson.ParseBytes(b).IsArray() {
		return nil, 0, fmt.Errorf("%s page %d: %w", path, page, ErrMalformedPayload)
	}

	totalPages, _ := strconv.Atoi(resp.Header.Get(TOTAL_PAGES_HEADER))
	return b, totalPages, nil
}
