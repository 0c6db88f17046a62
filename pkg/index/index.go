// Package index maintains an in-memory search index over the current
// snapshot. Lookups run against an immutable generation that is swapped
// atomically on update, so searches never observe a half-built index.
package index

import (
	"sync"

	"github.com/w4lkr/shopsync/pkg/catalog"
)

type Index struct {
	mu  sync.RWMutex
	gen *generation
}

// generation is one immutable build of the index. It is never mutated
// after buildGeneration returns.
type generation struct {
	items      []catalog.Item
	categories []catalog.Category

	itemsByName map[string][]int
	postings    map[string][]posting
	catsByName  map[string]int
}

// posting links a token to an item position. inName marks tokens that occur
// in the item name rather than only in its descriptions.
type posting struct {
	item   int
	inName bool
}

func New() *Index {
	return &Index{gen: buildGeneration(nil, nil)}
}

// Update builds a fresh generation from the snapshot and publishes it.
// Searches running against the previous generation finish undisturbed.
func (ix *Index) Update(items []catalog.Item, categories []catalog.Category) {
	gen := buildGeneration(items, categories)
	ix.mu.Lock()
	ix.gen = gen
	ix.mu.Unlock()
}

func (ix *Index) generation() *generation {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.gen
}

// Items returns the indexed items in snapshot order.
func (ix *Index) Items() []catalog.Item {
	return ix.generation().items
}

// Categories returns the indexed categories in snapshot order.
func (ix *Index) Categories() []catalog.Category {
	return ix.generation().categories
}

// Counts reports the number of indexed items and categories.
func (ix *Index) Counts() (items, categories int) {
	gen := ix.generation()
	return len(gen.items), len(gen.categories)
}

func buildGeneration(items []catalog.Item, categories []catalog.Category) *generation {
	g := &generation{
		items:       items,
		categories:  categories,
		itemsByName: make(map[string][]int),
		postings:    make(map[string][]posting),
		catsByName:  make(map[string]int),
	}

	for i, it := range items {
		if n := catalog.NormalizeName(it.Name); n != "" {
			g.itemsByName[n] = append(g.itemsByName[n], i)
		}

		// Collect each distinct token once per item; a name occurrence
		// outranks one in the descriptions.
		tokens := make(map[string]bool)
		for _, t := range catalog.Tokenize(it.Name) {
			tokens[t] = true
		}
		for _, t := range catalog.Tokenize(it.ShortDescription) {
			if _, ok := tokens[t]; !ok {
				tokens[t] = false
			}
		}
		for _, t := range catalog.Tokenize(it.Description) {
			if _, ok := tokens[t]; !ok {
				tokens[t] = false
			}
		}
		for t, inName := range tokens {
			g.postings[t] = append(g.postings[t], posting{item: i, inName: inName})
		}
	}

	for i, c := range categories {
		if n := catalog.NormalizeName(c.Name); n != "" {
			if _, taken := g.catsByName[n]; !taken {
				g.catsByName[n] = i
			}
		}
	}
	return g
}
