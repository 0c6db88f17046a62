// Package syncer orchestrates one synchronization cycle: fetch the catalog
// from the structured store API, fall back to scraping the HTML listings
// when the API is unreachable, and serve the previous snapshot when every
// fresh source fails. Each cycle merges into the persisted snapshot,
// records a run in the history and republishes the search index.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/w4lkr/shopsync/pkg/catalog"
	"github.com/w4lkr/shopsync/pkg/index"
	"github.com/w4lkr/shopsync/pkg/scrape"
	"github.com/w4lkr/shopsync/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Fetcher is the structured API source. The boolean reports whether the
// returned listing is complete; partial listings merge without removals.
type Fetcher interface {
	Products(ctx context.Context) ([]catalog.Item, bool, error)
	Categories(ctx context.Context) ([]catalog.Category, bool, error)
}

// Scraper is the HTML fallback source.
type Scraper interface {
	Categories(ctx context.Context) ([]catalog.Category, error)
	Items(ctx context.Context, cat catalog.Category) ([]catalog.Item, error)
	Products(ctx context.Context) ([]catalog.Item, error)
}

// Locker guards the snapshot directory against concurrent writers.
type Locker interface {
	Lock() error
	Unlock() error
}

// wipeGuardThreshold is the snapshot size above which an empty complete
// listing is treated as an upstream fault rather than a real catalog wipe.
const wipeGuardThreshold = 10

// Syncer runs synchronization cycles against one store.
type Syncer struct {
	Fetcher Fetcher
	Scraper Scraper          // optional; nil disables the HTML fallback
	Store   *storage.Store   // required
	History *storage.History // optional; nil skips run recording
	Index   *index.Index     // optional; nil skips index rebuilds
	Lock    Locker           // optional; guards against concurrent processes
	Log     Logger           // optional; nil = no logging
}

// collected is what one source produced.
type collected struct {
	items         []catalog.Item
	cats          []catalog.Category
	itemsComplete bool
	catsComplete  bool
	source        string
	errCount      int

	// note carries the reason a degraded source was used, recorded on the
	// run even when the fallback succeeded.
	note string
}

// Run executes one synchronization cycle and returns the finalized run
// record. The run is recorded in the history on every source outcome,
// including the fully degraded one that serves the previous snapshot.
func (s *Syncer) Run(ctx context.Context) (*catalog.SyncRun, error) {
	log := s.Log
	if log == nil {
		log = nopLogger{}
	}

	run := &catalog.SyncRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	if s.Lock != nil {
		if err := s.Lock.Lock(); err != nil {
			return nil, err
		}
		defer s.Lock.Unlock()
	}

	prev, err := s.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading previous snapshot: %w", err)
	}

	col, err := s.collect(ctx, log)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return s.finishCached(ctx, run, prev, err, log)
	}

	// An empty complete listing over a well-filled snapshot is almost
	// always an upstream fault. Downgrade it to a partial merge so a
	// broken store cannot wipe the local catalog.
	if col.itemsComplete && len(col.items) == 0 && len(prev.Items) > wipeGuardThreshold {
		log.Errorf("store returned 0 products but the snapshot has %d, keeping them", len(prev.Items))
		col.itemsComplete = false
		col.errCount++
	}
	if col.catsComplete && len(col.cats) == 0 && len(prev.Categories) > wipeGuardThreshold {
		log.Errorf("store returned 0 categories but the snapshot has %d, keeping them", len(prev.Categories))
		col.catsComplete = false
		col.errCount++
	}

	mergedItems, itemChanges := storage.Merge(prev.Items, col.items, col.itemsComplete)
	mergedCats, catChanges := storage.MergeCategories(prev.Categories, col.cats, col.catsComplete)
	changes := append(itemChanges, catChanges...)

	run.EndedAt = time.Now().UTC()
	run.Source = col.source
	run.ItemCount = len(mergedItems)
	run.CategoryCount = len(mergedCats)
	run.ErrorCount = col.errCount
	run.ErrorMessage = col.note

	snap := &storage.Snapshot{Items: mergedItems, Categories: mergedCats, Meta: *run}
	if err := s.Store.Save(snap); err != nil {
		return run, fmt.Errorf("persisting snapshot: %w", err)
	}

	s.recordRun(ctx, run, changes, log)

	if s.Index != nil {
		s.Index.Update(mergedItems, mergedCats)
	}

	log.Infof("sync %s done: %d items, %d categories, %d changes, source %s",
		run.ID, run.ItemCount, run.CategoryCount, len(changes), run.Source)
	return run, nil
}

// collect walks the source ladder: structured API first, HTML listings when
// the API is unreachable. A non-nil error means no fresh data at all.
func (s *Syncer) collect(ctx context.Context, log Logger) (*collected, error) {
	col, apiErr := s.collectAPI(ctx, log)
	if apiErr == nil {
		return col, nil
	}
	if ctx.Err() != nil {
		return nil, apiErr
	}

	if s.Scraper == nil {
		return nil, apiErr
	}
	log.Warnf("store API unreachable, falling back to the HTML listings: %v", apiErr)

	col, scrapeErr := s.collectScrape(ctx, log)
	if scrapeErr != nil {
		return nil, fmt.Errorf("api: %v; scrape: %v", apiErr, scrapeErr)
	}
	col.errCount++
	col.note = apiErr.Error()
	return col, nil
}

func (s *Syncer) collectAPI(ctx context.Context, log Logger) (*collected, error) {
	items, itemsComplete, err := s.Fetcher.Products(ctx)
	if err != nil {
		return nil, err
	}

	col := &collected{
		items:         items,
		itemsComplete: itemsComplete,
		source:        catalog.SourceAPI,
	}
	if !itemsComplete {
		log.Warnf("product listing is incomplete, removals are skipped this run")
		col.errCount++
	}

	cats, catsComplete, err := s.Fetcher.Categories(ctx)
	if err != nil {
		// Products came through, so the store is up; keep the stored
		// categories rather than failing the whole run.
		log.Warnf("categories fetch failed, keeping the stored ones: %v", err)
		col.errCount++
		return col, nil
	}
	col.cats = cats
	col.catsComplete = catsComplete
	if !catsComplete {
		col.errCount++
	}
	return col, nil
}

// collectScrape gathers the catalog from the HTML listings: the category
// navigation first, then each category's pages. Items listed in several
// categories are folded into one record carrying all the references. When
// no category yields anything the plain shop listing is walked instead.
func (s *Syncer) collectScrape(ctx context.Context, log Logger) (*collected, error) {
	col := &collected{source: catalog.SourceScrape}

	cats, err := s.Scraper.Categories(ctx)
	switch {
	case errors.Is(err, scrape.ErrNoCategories):
		log.Warnf("listing exposes no categories, keeping the stored ones")
		col.errCount++
	case err != nil:
		return nil, err
	default:
		col.cats = cats
	}

	seen := make(map[string]int)
	for _, cat := range col.cats {
		items, err := s.Scraper.Items(ctx, cat)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			log.Warnf("scraping category %q failed: %v", cat.Name, err)
			col.errCount++
			continue
		}
		for _, it := range items {
			key := it.Key()
			if key == "" {
				continue
			}
			if pos, ok := seen[key]; ok {
				col.items[pos].Categories = mergeRefs(col.items[pos].Categories, it.Categories)
				continue
			}
			seen[key] = len(col.items)
			col.items = append(col.items, it)
		}
	}

	if len(col.items) == 0 {
		items, err := s.Scraper.Products(ctx)
		if err != nil {
			if len(col.cats) == 0 {
				return nil, err
			}
			log.Warnf("shop listing scrape failed: %v", err)
			col.errCount++
		} else {
			col.items = items
		}
	}

	// Scraped listings only show what the theme renders. They never count
	// as complete, so the merge cannot remove anything.
	return col, nil
}

func (s *Syncer) finishCached(ctx context.Context, run *catalog.SyncRun, prev *storage.Snapshot, cause error, log Logger) (*catalog.SyncRun, error) {
	log.Errorf("every source failed, serving the previous snapshot: %v", cause)

	run.EndedAt = time.Now().UTC()
	run.Source = catalog.SourceCache
	run.UsedCachedData = true
	run.ItemCount = len(prev.Items)
	run.CategoryCount = len(prev.Categories)
	run.ErrorCount = 1
	run.ErrorMessage = cause.Error()

	// The snapshot files stay untouched. Only the history learns about
	// the failed attempt, and the index still serves the stored data.
	s.recordRun(ctx, run, nil, log)
	if s.Index != nil {
		s.Index.Update(prev.Items, prev.Categories)
	}
	return run, nil
}

func (s *Syncer) recordRun(ctx context.Context, run *catalog.SyncRun, changes []storage.Change, log Logger) {
	if s.History == nil {
		return
	}
	if err := s.History.RecordRun(ctx, *run, changes); err != nil {
		log.Warnf("could not record run %s: %v", run.ID, err)
	}
}

func mergeRefs(into, add []catalog.CategoryRef) []catalog.CategoryRef {
	have := make(map[string]bool, len(into))
	for _, r := range into {
		have[refKey(r)] = true
	}
	for _, r := range add {
		if k := refKey(r); !have[k] {
			have[k] = true
			into = append(into, r)
		}
	}
	return into
}

func refKey(r catalog.CategoryRef) string {
	if r.ID != 0 {
		return fmt.Sprintf("id:%d", r.ID)
	}
	if r.Slug != "" {
		return "slug:" + r.Slug
	}
	return "name:" + catalog.NormalizeName(r.Name)
}
