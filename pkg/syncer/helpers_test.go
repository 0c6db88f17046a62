package syncer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/w4lkr/shopsync/pkg/catalog"
	"github.com/w4lkr/shopsync/pkg/index"
	"github.com/w4lkr/shopsync/pkg/storage"
)

// fakeFetcher plays the structured API source.
type fakeFetcher struct {
	items    []catalog.Item
	cats     []catalog.Category
	complete bool
	err      error

	productCalls int
}

func (f *fakeFetcher) Products(ctx context.Context) ([]catalog.Item, bool, error) {
	f.productCalls++
	if f.err != nil {
		return nil, false, f.err
	}
	return f.items, f.complete, nil
}

func (f *fakeFetcher) Categories(ctx context.Context) ([]catalog.Category, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.cats, f.complete, nil
}

// fakeScraper plays the HTML fallback source. Items are served per category
// slug; shop is the plain listing walk.
type fakeScraper struct {
	cats   []catalog.Category
	catErr error

	items   map[string][]catalog.Item
	itemErr error

	shop    []catalog.Item
	shopErr error
}

func (f *fakeScraper) Categories(ctx context.Context) ([]catalog.Category, error) {
	return f.cats, f.catErr
}

func (f *fakeScraper) Items(ctx context.Context, cat catalog.Category) ([]catalog.Item, error) {
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	items := f.items[cat.Slug]
	ref := catalog.CategoryRef{ID: cat.ID, Name: cat.Name, Slug: cat.Slug}
	out := make([]catalog.Item, len(items))
	for i, it := range items {
		it.Categories = append(it.Categories, ref)
		out[i] = it
	}
	return out, nil
}

func (f *fakeScraper) Products(ctx context.Context) ([]catalog.Item, error) {
	return f.shop, f.shopErr
}

type fakeLock struct {
	locks   int
	unlocks int
}

func (l *fakeLock) Lock() error   { l.locks++; return nil }
func (l *fakeLock) Unlock() error { l.unlocks++; return nil }

func apiItem(id int64, name string) catalog.Item {
	slug := strings.ReplaceAll(catalog.NormalizeName(name), " ", "-")
	return catalog.Item{
		ID:       id,
		Name:     name,
		Slug:     slug,
		URL:      "https://shop.example.com/produkt/" + slug + "/",
		Price:    "9.90",
		Source:   catalog.SourceAPI,
		SyncedAt: time.Now().UTC(),
	}
}

func scrapedItem(slug string) catalog.Item {
	return catalog.Item{
		Name:     slug,
		Slug:     slug,
		URL:      "https://shop.example.com/produkt/" + slug + "/",
		Price:    "5,50",
		Source:   catalog.SourceScrape,
		SyncedAt: time.Now().UTC(),
	}
}

func apiCategory(id int64, name string) catalog.Category {
	return catalog.Category{
		ID:       id,
		Name:     name,
		Slug:     catalog.NormalizeName(name),
		Source:   catalog.SourceAPI,
		SyncedAt: time.Now().UTC(),
	}
}

func scrapedCategory(name, slug string) catalog.Category {
	return catalog.Category{
		Name:     name,
		Slug:     slug,
		URL:      "https://shop.example.com/produkt-kategorie/" + slug + "/",
		Source:   catalog.SourceScrape,
		SyncedAt: time.Now().UTC(),
	}
}

// newTestSyncer wires a syncer against a temporary snapshot directory with
// a real history database and search index.
func newTestSyncer(t *testing.T, fetcher Fetcher, scraper Scraper) *Syncer {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	history, err := storage.OpenHistory(filepath.Join(dir, "history.sqlite"))
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	return &Syncer{
		Fetcher: fetcher,
		Scraper: scraper,
		Store:   store,
		History: history,
		Index:   index.New(),
	}
}

func seedSnapshot(t *testing.T, s *Syncer, items []catalog.Item, cats []catalog.Category) {
	t.Helper()
	snap := &storage.Snapshot{
		Items:      items,
		Categories: cats,
		Meta:       catalog.SyncRun{ID: "seed-run", Source: catalog.SourceAPI},
	}
	if err := s.Store.Save(snap); err != nil {
		t.Fatalf("seeding snapshot: %v", err)
	}
}
