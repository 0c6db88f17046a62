package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/w4lkr/shopsync/pkg/catalog"
)

const listingPage1 = `<!DOCTYPE html>
<html><body>
<ul class="products">
  <li class="product">
    <a href="/produkt/pizza-margherita/">
      <img src="/img/pizza-margherita.jpg">
      <h2 class="woocommerce-loop-product__title">Pizza Margherita</h2>
      <span class="price"><span class="woocommerce-Price-amount">8,90&nbsp;&euro;</span></span>
    </a>
  </li>
  <li class="product">
    <a href="/produkt/pasta-carbonara/">
      <h2 class="woocommerce-loop-product__title">Pasta Carbonara</h2>
      <span class="price"><del><span class="woocommerce-Price-amount">11,90</span></del><ins><span class="woocommerce-Price-amount">9,90</span></ins></span>
    </a>
  </li>
</ul>
<nav class="woocommerce-pagination"><a class="next page-numbers" href="/shop/page/2/">&rarr;</a></nav>
<ul class="product-categories">
  <li><a href="/produkt-kategorie/pizza/">Pizza</a></li>
  <li><a href="/produkt-kategorie/pasta/">Pasta</a></li>
</ul>
</body></html>`

const listingPage2 = `<!DOCTYPE html>
<html><body>
<ul class="products">
  <li class="product">
    <a href="/produkt/tiramisu/">
      <h2 class="woocommerce-loop-product__title">Tiramisu</h2>
      <span class="price"><span class="woocommerce-Price-amount">5,50</span></span>
    </a>
  </li>
</ul>
</body></html>`

const listingNoTitles = `<!DOCTYPE html>
<html><body>
<div class="products">
  <div class="product">
    <a href="/produkt/spaghetti-aglio-e-olio/"><img src="/img/s.jpg"></a>
  </div>
</div>
</body></html>`

const emptyPage = `<!DOCTYPE html><html><body><p>Kein Shop hier.</p></body></html>`

func newTestScraper(t *testing.T, baseURL string) *Scraper {
	t.Helper()
	s, err := New(Options{
		BaseURL: baseURL,
		Delay:   time.Millisecond,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.policy.Backoff = nil
	return s
}

func TestProducts_ExtractsFromListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage2)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Name != "Tiramisu" {
		t.Fatalf("expected name Tiramisu, got %q", it.Name)
	}
	if it.Price != "5,50" {
		t.Fatalf("expected price 5,50, got %q", it.Price)
	}
	if it.Slug != "tiramisu" {
		t.Fatalf("expected slug tiramisu, got %q", it.Slug)
	}
	if it.URL != srv.URL+"/produkt/tiramisu/" {
		t.Fatalf("expected absolute product URL, got %q", it.URL)
	}
	if it.Source != "scrape" {
		t.Fatalf("expected source scrape, got %q", it.Source)
	}
	if it.ID != 0 {
		t.Fatalf("scraped items carry no store id, got %d", it.ID)
	}
}

func TestProducts_FollowsPagination(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/shop/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage1)
	})
	mux.HandleFunc("/shop/page/2/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage2)
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items across 2 pages, got %d", len(items))
	}
	if items[2].Name != "Tiramisu" {
		t.Fatalf("expected page order preserved, got %q last", items[2].Name)
	}
}

func TestProducts_SalePriceWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/shop/" {
			fmt.Fprint(w, listingPage1)
			return
		}
		fmt.Fprint(w, emptyPage)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(items) < 2 {
		t.Fatalf("expected at least 2 items, got %d", len(items))
	}
	if items[1].Price != "9,90" {
		t.Fatalf("expected current sale price 9,90, got %q", items[1].Price)
	}
	if items[0].Price != "8,90" {
		t.Fatalf("expected regular price 8,90, got %q", items[0].Price)
	}
}

func TestProducts_PriceUnavailableWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingNoTitles)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Price != "unavailable" {
		t.Fatalf("expected price sentinel, got %q", items[0].Price)
	}
}

func TestProducts_NameFallsBackToSlug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingNoTitles)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if items[0].Name != "spaghetti aglio e olio" {
		t.Fatalf("expected slug-derived name, got %q", items[0].Name)
	}
}

func TestProducts_NoProductsOnFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyPage)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	_, err := s.Products(context.Background())
	if !errors.Is(err, ErrNoProducts) {
		t.Fatalf("expected ErrNoProducts, got %v", err)
	}
}

func TestProducts_RetriesServerError(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&requests, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, listingPage2)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected recovery after retry, got %d items", len(items))
	}
	if requests != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
}

func TestProducts_KeepsPartialWalkOnLaterFailure(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/shop/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage1)
	})
	mux.HandleFunc("/shop/page/2/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("expected partial result without error, got %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected the 2 items from page 1, got %d", len(items))
	}
}

func TestProducts_ReusesCachedPages(t *testing.T) {
	var requests int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		fmt.Fprint(w, listingPage2)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	if _, err := s.Products(context.Background()); err != nil {
		t.Fatalf("first Products: %v", err)
	}
	before := atomic.LoadInt64(&requests)

	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("second Products: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item from the cached page, got %d", len(items))
	}
	if atomic.LoadInt64(&requests) != before {
		t.Fatalf("expected no network traffic on the cached walk, got %d extra requests", requests-before)
	}
}

func TestProducts_StopsAtForeignPaginationLink(t *testing.T) {
	page := `<ul class="products"><li class="product"><a href="/produkt/x/"><h2>X</h2></a></li></ul>
<a class="next page-numbers" href="https://elsewhere.example.com/shop/page/2/">next</a>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected walk to stop at the foreign link, got %d items", len(items))
	}
}

func TestProducts_StopsAtPageCap(t *testing.T) {
	// Every page links to another one; only the cap ends this walk.
	var pages int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&pages, 1)
		fmt.Fprintf(w, `<ul class="products"><li class="product"><a href="/produkt/item-%d/"><h2>Item %d</h2></a></li></ul>
<a class="next page-numbers" href="/shop/page/%d/">next</a>`, n, n, n+1)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	items, err := s.Products(context.Background())
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if len(items) != MAX_PAGES {
		t.Fatalf("expected the walk to stop at %d pages, got %d items", MAX_PAGES, len(items))
	}
}

func TestCategories_FromNavigation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage1)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	cats, err := s.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].Name != "Pizza" || cats[0].Slug != "pizza" {
		t.Fatalf("unexpected category: %+v", cats[0])
	}
	if cats[0].URL != srv.URL+"/produkt-kategorie/pizza/" {
		t.Fatalf("expected absolute category URL, got %q", cats[0].URL)
	}
	if cats[1].Name != "Pasta" {
		t.Fatalf("unexpected category: %+v", cats[1])
	}
}

func TestItems_WalksCategoryAndAttachesRef(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/produkt-kategorie/pasta/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage2)
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	cat := catalog.Category{Name: "Pasta", Slug: "pasta", URL: srv.URL + "/produkt-kategorie/pasta/"}
	items, err := s.Items(context.Background(), cat)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if len(items[0].Categories) != 1 || items[0].Categories[0].Name != "Pasta" {
		t.Fatalf("expected the category attached to the item, got %+v", items[0].Categories)
	}
}

func TestItems_RequiresListingURL(t *testing.T) {
	s := newTestScraper(t, "https://shop.example.com")
	if _, err := s.Items(context.Background(), catalog.Category{Name: "Pizza"}); err == nil {
		t.Fatalf("expected error for a category without a listing URL")
	}
}

func TestCategories_NoneFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyPage)
	}))
	defer srv.Close()

	s := newTestScraper(t, srv.URL)
	_, err := s.Categories(context.Background())
	if !errors.Is(err, ErrNoCategories) {
		t.Fatalf("expected ErrNoCategories, got %v", err)
	}
}
