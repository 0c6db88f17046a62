package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/w4lkr/shopsync/internal/utils"
	"github.com/w4lkr/shopsync/pkg/catalog"
)

// Products returns every product the store lists. The boolean reports
// whether the listing is complete; partial results are returned when some
// pages stayed unreachable after the sequential fallback.
func (c *Client) Products(ctx context.Context) ([]catalog.Item, bool, error) {
	if items, ok := c.items.Get(cacheKeyProducts); ok {
		utils.Log.Debugf("serving %d products from cache", len(items))
		return items, true, nil
	}

	items, complete, err := fetchPaged(ctx, c, PRODUCTS_PATH, parseItems)
	if err != nil {
		return nil, false, err
	}
	if complete {
		c.items.Set(cacheKeyProducts, items)
	}
	return items, complete, nil
}

// Categories returns every product category the store lists.
func (c *Client) Categories(ctx context.Context) ([]catalog.Category, bool, error) {
	if cats, ok := c.cats.Get(cacheKeyCategories); ok {
		utils.Log.Debugf("serving %d categories from cache", len(cats))
		return cats, true, nil
	}

	cats, complete, err := fetchPaged(ctx, c, CATEGORIES_PATH, parseCategories)
	if err != nil {
		return nil, false, err
	}
	if complete {
		c.cats.Set(cacheKeyCategories, cats)
	}
	return cats, complete, nil
}

// fetchPaged walks a paginated listing. Page 1 decides the strategy: when
// the store advertises its page count the remaining pages are fetched
// concurrently, otherwise pages are probed forward until a short page.
func fetchPaged[T any](ctx context.Context, c *Client, path string, parse func(gjson.Result, time.Time) []T) ([]T, bool, error) {
	now := time.Now().UTC()

	first, totalPages, err := c.fetchPage(ctx, path, 1)
	if err != nil {
		// Without page 1 there is nothing to paginate over.
		return nil, false, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	pageOne := parse(gjson.ParseBytes(first), now)

	if totalPages < 1 {
		return probeForward(ctx, c, path, parse, pageOne, now)
	}
	if totalPages == 1 {
		return pageOne, true, nil
	}

	pages := make([][]T, totalPages)
	pages[0] = pageOne
	errs := make([]error, totalPages)

	utils.Log.Debugf("fetching %s pages 2-%d, concurrency %d", path, totalPages, c.concurrency)

	pageCh := make(chan int, c.concurrency)
	wg := new(sync.WaitGroup)
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func() {
			defer wg.Done()
			for page := range pageCh {
				body, _, err := c.fetchPage(ctx, path, page)
				if err != nil {
					errs[page-1] = err
					continue
				}
				pages[page-1] = parse(gjson.ParseBytes(body), now)
			}
		}()
	}
	for page := 2; page <= totalPages; page++ {
		pageCh <- page
	}
	close(pageCh)
	wg.Wait()

	// Pages that failed concurrently get one sequential pass, bounded by a
	// global failure budget so a dead store does not stall the sync.
	budget := SEQUENTIAL_ERROR_BUDGET
	complete := true
	for i := range errs {
		if errs[i] == nil {
			continue
		}
		if budget <= 0 {
			complete = false
			continue
		}
		utils.Log.Warnf("%s page %d failed, retrying sequentially: %v", path, i+1, errs[i])
		body, _, err := c.fetchPage(ctx, path, i+1)
		if err != nil {
			budget--
			complete = false
			utils.Log.Warnf("%s page %d failed again: %v", path, i+1, err)
			continue
		}
		pages[i] = parse(gjson.ParseBytes(body), now)
		errs[i] = nil
	}

	out := make([]T, 0, totalPages*c.perPage)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, complete, nil
}

// probeForward pages through a listing that does not advertise its total
// page count. The walk ends at the first page shorter than the page size.
// A page that stays unreachable is skipped and the walk continues, bounded
// by a global error budget so a dead store does not burn requests forever.
func probeForward[T any](ctx context.Context, c *Client, path string, parse func(gjson.Result, time.Time) []T, pageOne []T, now time.Time) ([]T, bool, error) {
	out := pageOne
	last := pageOne
	budget := SEQUENTIAL_ERROR_BUDGET
	complete := true
	for page := 2; len(last) == c.perPage; page++ {
		if page > MAX_PROBE_PAGES {
			utils.Log.Warnf("%s: aborting probe after %d pages", path, MAX_PROBE_PAGES)
			return out, false, nil
		}
		body, _, err := c.fetchPage(ctx, path, page)
		if err != nil {
			if ctx.Err() != nil {
				return out, false, nil
			}
			complete = false
			budget--
			if budget <= 0 {
				utils.Log.Warnf("%s: error budget exhausted while probing, keeping %d records: %v", path, len(out), err)
				return out, false, nil
			}
			utils.Log.Warnf("%s page %d failed while probing, skipping it: %v", path, page, err)
			continue
		}
		last = parse(gjson.ParseBytes(body), now)
		out = append(out, last...)
	}
	return out, complete, nil
}

func parseItems(result gjson.Result, syncedAt time.Time) []catalog.Item {
	var items []catalog.Item
	result.ForEach(func(_, value gjson.Result) bool {
		item := catalog.Item{
			ID:               value.Get("id").Int(),
			Name:             value.Get("name").String(),
			Slug:             value.Get("slug").String(),
			URL:              value.Get("permalink").String(),
			Description:      value.Get("description").String(),
			ShortDescription: value.Get("short_description").String(),
			Price:            value.Get("price").String(),
			Source:           catalog.SourceAPI,
			SyncedAt:         syncedAt,
		}
		if item.Price == "" {
			// Store API variant nests the amount under prices.
			item.Price = value.Get("prices.price").String()
		}
		value.Get("categories").ForEach(func(_, cat gjson.Result) bool {
			item.Categories = append(item.Categories, catalog.CategoryRef{
				ID:   cat.Get("id").Int(),
				Name: cat.Get("name").String(),
				Slug: cat.Get("slug").String(),
			})
			return true
		})
		value.Get("images").ForEach(func(_, img gjson.Result) bool {
			if src := img.Get("src").String(); src != "" {
				item.Images = append(item.Images, src)
			}
			return true
		})
		value.Get("attributes").ForEach(func(_, attr gjson.Result) bool {
			name := attr.Get("name").String()
			if name == "" {
				return true
			}
			var opts []string
			attr.Get("options").ForEach(func(_, o gjson.Result) bool {
				opts = append(opts, o.String())
				return true
			})
			if item.Attributes == nil {
				item.Attributes = make(map[string]string)
			}
			item.Attributes[name] = strings.Join(opts, ", ")
			return true
		})
		items = append(items, item)
		return true
	})
	return items
}

func parseCategories(result gjson.Result, syncedAt time.Time) []catalog.Category {
	var cats []catalog.Category
	result.ForEach(func(_, value gjson.Result) bool {
		cats = append(cats, catalog.Category{
			ID:       value.Get("id").Int(),
			Name:     value.Get("name").String(),
			Slug:     value.Get("slug").String(),
			Parent:   value.Get("parent").Int(),
			Count:    int(value.Get("count").Int()),
			Source:   catalog.SourceAPI,
			SyncedAt: syncedAt,
		})
		return true
	})
	return cats
}
