package index

import (
	"sort"
	"strings"

	"github.com/w4lkr/shopsync/pkg/catalog"
)

const (
	// MinScore is the fraction of query tokens an item must match to
	// appear in search results.
	MinScore = 0.3

	// MaxResults caps one search response.
	MaxResults = 20

	// fuzzyMinFraction is the token overlap FindItem accepts when no
	// exact name match exists.
	fuzzyMinFraction = 0.6
)

// Result is one search hit. Score is the fraction of query tokens the item
// matched, 1.0 meaning all of them.
type Result struct {
	Item  catalog.Item `json:"item"`
	Score float64      `json:"score"`

	nameHits int
}

// Search runs a ranked lookup in three passes: items whose normalized name
// equals the query, items of categories matching the query, then token
// overlap across names and descriptions. Hits are appended in that order
// and sorted by score, so at equal score the earlier pass wins; remaining
// ties keep snapshot order. At most MaxResults hits are returned.
func (ix *Index) Search(query string) []Result {
	gen := ix.generation()
	qTokens := dedupeTokens(catalog.Tokenize(query))
	if len(qTokens) == 0 {
		return nil
	}

	// Token overlap is accumulated up front; the earlier passes reuse its
	// name-hit counts for tie-breaking.
	type acc struct {
		matched  int
		nameHits int
	}
	accs := make(map[int]*acc)
	for _, tok := range qTokens {
		for _, p := range gen.postings[tok] {
			a := accs[p.item]
			if a == nil {
				a = &acc{}
				accs[p.item] = a
			}
			a.matched++
			if p.inName {
				a.nameHits++
			}
		}
	}
	nameHits := func(pos int) int {
		if a := accs[pos]; a != nil {
			return a.nameHits
		}
		return 0
	}

	var results []Result
	seen := make(map[int]bool)
	add := func(pos int, score float64, hits int) {
		if seen[pos] {
			return
		}
		seen[pos] = true
		results = append(results, Result{Item: gen.items[pos], Score: score, nameHits: hits})
	}

	norm := catalog.NormalizeName(query)
	for _, pos := range gen.itemsByName[norm] {
		add(pos, 1.0, len(qTokens))
	}

	// Items of matching categories score by how much of the query the
	// category name covers, so "pizza salami" ranks the Pizza category's
	// items at 0.5. Categories with the best coverage emit first; add
	// keeps the first score for items in several matched categories.
	cats := gen.matchCategories(norm)
	if len(cats) > 0 {
		cov := make(map[int]float64, len(cats))
		for _, ci := range cats {
			c := tokenCoverage(qTokens, gen.categories[ci].Name)
			if c < MinScore {
				c = MinScore
			}
			cov[ci] = c
		}
		sort.SliceStable(cats, func(i, j int) bool { return cov[cats[i]] > cov[cats[j]] })
		for _, ci := range cats {
			for _, pos := range gen.itemPositions([]int{ci}) {
				add(pos, cov[ci], nameHits(pos))
			}
		}
	}

	for pos := range gen.items {
		a := accs[pos]
		if a == nil {
			continue
		}
		score := float64(a.matched) / float64(len(qTokens))
		if score < MinScore {
			continue
		}
		add(pos, score, a.nameHits)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].nameHits > results[j].nameHits
	})

	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return results
}

// tokenCoverage is the fraction of query tokens found in name.
func tokenCoverage(qTokens []string, name string) float64 {
	have := make(map[string]bool)
	for _, t := range catalog.Tokenize(name) {
		have[t] = true
	}
	matched := 0
	for _, t := range qTokens {
		if have[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(qTokens))
}

// FindItem returns the item whose name matches best: an exact normalized
// match first, otherwise the item whose name covers the largest fraction of
// the query tokens, if that fraction reaches 60%.
func (ix *Index) FindItem(name string) (catalog.Item, bool) {
	gen := ix.generation()

	if hits, ok := gen.itemsByName[catalog.NormalizeName(name)]; ok && len(hits) > 0 {
		return gen.items[hits[0]], true
	}

	qTokens := dedupeTokens(catalog.Tokenize(name))
	if len(qTokens) == 0 {
		return catalog.Item{}, false
	}

	best := -1
	bestFrac := 0.0
	for i, it := range gen.items {
		nameTokens := make(map[string]bool)
		for _, t := range catalog.Tokenize(it.Name) {
			nameTokens[t] = true
		}
		matched := 0
		for _, t := range qTokens {
			if nameTokens[t] {
				matched++
			}
		}
		frac := float64(matched) / float64(len(qTokens))
		if frac >= fuzzyMinFraction && frac > bestFrac {
			best, bestFrac = i, frac
		}
	}
	if best < 0 {
		return catalog.Item{}, false
	}
	return gen.items[best], true
}

// FindCategory returns the first category matching name: an exact
// normalized match when one exists, otherwise the first category where
// either name contains the other.
func (ix *Index) FindCategory(name string) (catalog.Category, bool) {
	gen := ix.generation()
	matches := gen.matchCategories(catalog.NormalizeName(name))
	if len(matches) == 0 {
		return catalog.Category{}, false
	}
	return gen.categories[matches[0]], true
}

// ItemsInCategory returns the items assigned to any category matching name,
// in snapshot order.
func (ix *Index) ItemsInCategory(name string) []catalog.Item {
	gen := ix.generation()
	matches := gen.matchCategories(catalog.NormalizeName(name))
	if len(matches) == 0 {
		return nil
	}
	var items []catalog.Item
	for _, pos := range gen.itemPositions(matches) {
		items = append(items, gen.items[pos])
	}
	return items
}

// matchCategories returns the positions of every category matching the
// normalized query: the exact name match when one exists, otherwise all
// categories where either name contains the other.
func (gen *generation) matchCategories(norm string) []int {
	if norm == "" {
		return nil
	}
	if i, ok := gen.catsByName[norm]; ok {
		return []int{i}
	}
	var out []int
	for i, c := range gen.categories {
		cn := catalog.NormalizeName(c.Name)
		if cn == "" {
			continue
		}
		if strings.Contains(cn, norm) || strings.Contains(norm, cn) {
			out = append(out, i)
		}
	}
	return out
}

// itemPositions returns the positions of items referencing any of the given
// categories, in snapshot order. Refs match by id, slug, or normalized name.
func (gen *generation) itemPositions(cats []int) []int {
	var out []int
	for i := range gen.items {
		if gen.itemInCategories(gen.items[i], cats) {
			out = append(out, i)
		}
	}
	return out
}

func (gen *generation) itemInCategories(it catalog.Item, cats []int) bool {
	for _, ci := range cats {
		cat := gen.categories[ci]
		catNorm := catalog.NormalizeName(cat.Name)
		for _, ref := range it.Categories {
			if (cat.ID != 0 && ref.ID == cat.ID) ||
				(cat.Slug != "" && ref.Slug == cat.Slug) ||
				catalog.NormalizeName(ref.Name) == catNorm {
				return true
			}
		}
	}
	return false
}

func dedupeTokens(tokens []string) []string {
	seen := make(map[string]bool)
	out := tokens[:0]
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
