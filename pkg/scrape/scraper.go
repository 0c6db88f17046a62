// Package scrape recovers the product catalog from a store's public HTML
// listing pages when the API cannot be reached. It only sees what the
// listing markup exposes, so scraped records are always treated as partial.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/weppos/publicsuffix-go/publicsuffix"
	xpsl "golang.org/x/net/publicsuffix"

	"github.com/w4lkr/shopsync/internal/utils"
	"github.com/w4lkr/shopsync/pkg/cache"
	"github.com/w4lkr/shopsync/pkg/catalog"
	"github.com/w4lkr/shopsync/pkg/retry"
)

const (
	MAX_PAGES          = 50
	SCRAPE_MAX_RETRIES = 3
	SCRAPE_BACKOFF_SEC = 3

	USER_AGENT = "Mozilla/5.0 (X11; Linux x86_64; rv:82.0) Gecko/20100101 Firefox/82.0"
)

var (
	// ErrNoProducts is returned when the first listing page contains no
	// recognizable product markup.
	ErrNoProducts = errors.New("no products found in page markup")

	// ErrNoCategories is returned when the listing exposes no category
	// navigation. Callers fall back to previously synced categories; the
	// scraper never invents any.
	ErrNoCategories = errors.New("no categories found in page markup")
)

// Options configures a Scraper. Zero values fall back to defaults.
type Options struct {
	// BaseURL is the store root, e.g. https://shop.example.com.
	BaseURL string

	// ListURL overrides the listing start page. Defaults to BaseURL/shop/.
	ListURL string

	// Delay is the pause between page fetches. Defaults to one second.
	Delay   time.Duration
	Timeout time.Duration

	// CacheTTL bounds how long fetched pages are reused without hitting
	// the site again. Zero means the default; negative disables the cache.
	CacheTTL time.Duration

	Proxy string
}

func (o *Options) defaults() {
	if o.ListURL == "" {
		o.ListURL = o.BaseURL + "/shop/"
	}
	if o.Delay == 0 {
		o.Delay = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = time.Hour
	}
}

// Scraper walks a store's HTML listing pages.
type Scraper struct {
	http    *http.Client
	base    *url.URL
	listURL string
	delay   time.Duration

	// site is the registrable domain of the store. Pagination links that
	// resolve outside it end the walk.
	site string

	// pages holds fetched listing HTML so back-to-back degraded runs do
	// not re-crawl the whole site.
	pages *cache.Cache[string]

	policy retry.Policy
}

func New(opts Options) (*Scraper, error) {
	opts.defaults()
	if opts.BaseURL == "" {
		return nil, errors.New("store base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid store base URL %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: xpsl.List})
	if err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Jar:     jar,
	}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Scraper{
		http:    client,
		base:    base,
		listURL: opts.ListURL,
		delay:   opts.Delay,
		site:    site(base.Hostname()),
		pages:   cache.New[string](opts.CacheTTL),
		policy: retry.Policy{
			Attempts: SCRAPE_MAX_RETRIES,
			Backoff:  retry.Linear(SCRAPE_BACKOFF_SEC * time.Second),
		},
	}, nil
}

// Products walks the shop listing pages and returns every product found. A
// walk that breaks midway returns what was collected so far; only a
// fruitless first page is an error.
func (s *Scraper) Products(ctx context.Context) ([]catalog.Item, error) {
	return s.walk(ctx, s.listURL)
}

// Items walks one category's listing pages. Every returned item carries the
// category as a reference, since listing tiles do not repeat it.
func (s *Scraper) Items(ctx context.Context, cat catalog.Category) ([]catalog.Item, error) {
	if cat.URL == "" {
		return nil, fmt.Errorf("category %q has no listing URL", cat.Name)
	}
	items, err := s.walk(ctx, cat.URL)
	ref := catalog.CategoryRef{ID: cat.ID, Name: cat.Name, Slug: cat.Slug}
	for i := range items {
		items[i].Categories = append(items[i].Categories, ref)
	}
	return items, err
}

func (s *Scraper) walk(ctx context.Context, startURL string) ([]catalog.Item, error) {
	now := time.Now().UTC()
	pageURL := startURL
	seen := make(map[string]bool)
	var items []catalog.Item

	for page := 1; pageURL != ""; page++ {
		if page > MAX_PAGES {
			utils.Log.Warnf("scrape: stopping after %d pages", MAX_PAGES)
			break
		}
		if page > 1 {
			select {
			case <-ctx.Done():
				return items, ctx.Err()
			case <-time.After(s.delay):
			}
		}

		doc, err := s.fetchDoc(ctx, pageURL)
		if err != nil {
			if len(items) > 0 {
				utils.Log.Warnf("scrape: page %d failed, keeping %d items: %v", page, len(items), err)
				return items, nil
			}
			return nil, err
		}

		pageItems := extractItems(doc, s.base, now)
		if len(pageItems) == 0 {
			if page == 1 {
				return nil, ErrNoProducts
			}
			break
		}
		for _, it := range pageItems {
			key := it.Key()
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, it)
		}

		pageURL = s.nextPageURL(doc, pageURL)
	}

	utils.Log.Debugf("scrape: collected %d items", len(items))
	return items, nil
}

// Categories extracts the category navigation from the listing page. When
// the markup exposes none, ErrNoCategories is returned.
func (s *Scraper) Categories(ctx context.Context) ([]catalog.Category, error) {
	doc, err := s.fetchDoc(ctx, s.listURL)
	if err != nil {
		return nil, err
	}
	cats := extractCategories(doc, s.base, time.Now().UTC())
	if len(cats) == 0 {
		return nil, ErrNoCategories
	}
	return cats, nil
}

func (s *Scraper) fetchDoc(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if html, ok := s.pages.Get(pageURL); ok {
		return goquery.NewDocumentFromReader(strings.NewReader(html))
	}

	var doc *goquery.Document
	err := s.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", USER_AGENT)

		res, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s: unexpected status %d", pageURL, res.StatusCode)
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return err
		}
		s.pages.Set(pageURL, string(body))
		doc = d
		return nil
	})
	return doc, err
}

// nextPageURL finds the pagination link to the next listing page, or ""
// when the walk is over.
func (s *Scraper) nextPageURL(doc *goquery.Document, current string) string {
	href := ""
	for _, q := range []string{"a.next.page-numbers", ".woocommerce-pagination a.next", "a[rel='next']", "link[rel='next']"} {
		if h, ok := doc.Find(q).First().Attr("href"); ok && h != "" {
			href = h
			break
		}
	}
	if href == "" {
		return ""
	}
	cur, err := url.Parse(current)
	if err != nil {
		return ""
	}
	next := resolveURL(cur, href)
	if next == "" || next == current || !s.sameSite(next) {
		return ""
	}
	return next
}

func (s *Scraper) sameSite(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return site(u.Hostname()) == s.site
}

// site folds a hostname to its registrable domain. IP literals, as seen in
// tests and local setups, are kept verbatim.
func site(host string) string {
	if ip := net.ParseIP(host); ip != nil {
		return host
	}
	if d, err := publicsuffix.Domain(host); err == nil {
		return d
	}
	return host
}
