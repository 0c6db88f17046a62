package storage

import (
	"github.com/w4lkr/shopsync/pkg/catalog"
)

// Change types recorded in the change log.
const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
)

// Record kinds a change can refer to.
const (
	KindItem     = "item"
	KindCategory = "category"
)

// Change captures a single catalog change event for auditing or printing.
type Change struct {
	Kind       string // item | category
	Key        string
	Name       string
	ChangeType string // added | updated | removed
}

// Merge folds a fresh listing into the previous snapshot and reports what
// changed. A complete listing is authoritative: records it omits are
// removed. A partial listing (scrape, degraded fetch) only adds and
// updates, so a source that saw less than the full catalog never deletes.
func Merge(previous, fresh []catalog.Item, complete bool) ([]catalog.Item, []Change) {
	prevByKey := make(map[string]int)
	for i, it := range previous {
		for _, k := range it.Keys() {
			if _, taken := prevByKey[k]; !taken {
				prevByKey[k] = i
			}
		}
	}

	var changes []Change

	if complete {
		matched := make(map[int]bool)
		merged := make([]catalog.Item, 0, len(fresh))
		for _, f := range fresh {
			prevIdx := -1
			for _, k := range f.Keys() {
				if i, ok := prevByKey[k]; ok {
					prevIdx = i
					break
				}
			}
			merged = append(merged, f)
			if prevIdx < 0 {
				changes = append(changes, Change{Kind: KindItem, Key: f.Key(), Name: f.Name, ChangeType: ChangeAdded})
				continue
			}
			matched[prevIdx] = true
			if !equalItem(previous[prevIdx], f) {
				changes = append(changes, Change{Kind: KindItem, Key: f.Key(), Name: f.Name, ChangeType: ChangeUpdated})
			}
		}
		for i, p := range previous {
			if !matched[i] {
				changes = append(changes, Change{Kind: KindItem, Key: p.Key(), Name: p.Name, ChangeType: ChangeRemoved})
			}
		}
		return merged, changes
	}

	merged := make([]catalog.Item, len(previous))
	copy(merged, previous)
	for _, f := range fresh {
		prevIdx := -1
		for _, k := range f.Keys() {
			if i, ok := prevByKey[k]; ok {
				prevIdx = i
				break
			}
		}
		if prevIdx < 0 {
			merged = append(merged, f)
			for _, k := range f.Keys() {
				if _, taken := prevByKey[k]; !taken {
					prevByKey[k] = len(merged) - 1
				}
			}
			changes = append(changes, Change{Kind: KindItem, Key: f.Key(), Name: f.Name, ChangeType: ChangeAdded})
			continue
		}
		overlaid := overlayItem(merged[prevIdx], f)
		if !equalItem(merged[prevIdx], overlaid) {
			changes = append(changes, Change{Kind: KindItem, Key: overlaid.Key(), Name: overlaid.Name, ChangeType: ChangeUpdated})
		}
		merged[prevIdx] = overlaid
	}
	return merged, changes
}

// MergeCategories is Merge for category records.
func MergeCategories(previous, fresh []catalog.Category, complete bool) ([]catalog.Category, []Change) {
	prevByKey := make(map[string]int)
	for i, c := range previous {
		for _, k := range c.Keys() {
			if _, taken := prevByKey[k]; !taken {
				prevByKey[k] = i
			}
		}
	}
	find := func(c catalog.Category) int {
		for _, k := range c.Keys() {
			if i, ok := prevByKey[k]; ok {
				return i
			}
		}
		return -1
	}

	var changes []Change

	if complete {
		matched := make(map[int]bool)
		merged := make([]catalog.Category, 0, len(fresh))
		for _, f := range fresh {
			merged = append(merged, f)
			if i := find(f); i >= 0 {
				matched[i] = true
				if !equalCategory(previous[i], f) {
					changes = append(changes, Change{Kind: KindCategory, Key: f.Key(), Name: f.Name, ChangeType: ChangeUpdated})
				}
			} else {
				changes = append(changes, Change{Kind: KindCategory, Key: f.Key(), Name: f.Name, ChangeType: ChangeAdded})
			}
		}
		for i, p := range previous {
			if !matched[i] {
				changes = append(changes, Change{Kind: KindCategory, Key: p.Key(), Name: p.Name, ChangeType: ChangeRemoved})
			}
		}
		return merged, changes
	}

	merged := make([]catalog.Category, len(previous))
	copy(merged, previous)
	for _, f := range fresh {
		if i := find(f); i >= 0 {
			overlaid := overlayCategory(merged[i], f)
			if !equalCategory(merged[i], overlaid) {
				changes = append(changes, Change{Kind: KindCategory, Key: overlaid.Key(), Name: overlaid.Name, ChangeType: ChangeUpdated})
			}
			merged[i] = overlaid
			continue
		}
		merged = append(merged, f)
		for _, k := range f.Keys() {
			if _, taken := prevByKey[k]; !taken {
				prevByKey[k] = len(merged) - 1
			}
		}
		changes = append(changes, Change{Kind: KindCategory, Key: f.Key(), Name: f.Name, ChangeType: ChangeAdded})
	}
	return merged, changes
}

// overlayItem lays a partial-source record over the stored one. Fields the
// partial source cannot see keep their stored values, so a scrape never
// erases data the API delivered earlier.
func overlayItem(prev, fresh catalog.Item) catalog.Item {
	out := fresh
	if out.ID == 0 {
		out.ID = prev.ID
	}
	if out.Name == "" {
		out.Name = prev.Name
	}
	if out.Slug == "" {
		out.Slug = prev.Slug
	}
	if out.URL == "" {
		out.URL = prev.URL
	}
	if out.Description == "" {
		out.Description = prev.Description
	}
	if out.ShortDescription == "" {
		out.ShortDescription = prev.ShortDescription
	}
	if (out.Price == "" || out.Price == catalog.PriceUnavailable) && prev.Price != "" {
		out.Price = prev.Price
	}
	if len(out.Categories) == 0 {
		out.Categories = prev.Categories
	}
	if len(out.Images) == 0 {
		out.Images = prev.Images
	}
	if len(out.Attributes) == 0 {
		out.Attributes = prev.Attributes
	}
	return out
}

func overlayCategory(prev, fresh catalog.Category) catalog.Category {
	out := fresh
	if out.ID == 0 {
		out.ID = prev.ID
	}
	if out.Slug == "" {
		out.Slug = prev.Slug
	}
	if out.URL == "" {
		out.URL = prev.URL
	}
	if out.Parent == 0 {
		out.Parent = prev.Parent
	}
	if out.Count == 0 {
		out.Count = prev.Count
	}
	return out
}

// equalItem compares the catalog-visible fields, ignoring sync bookkeeping.
func equalItem(a, b catalog.Item) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Slug != b.Slug || a.URL != b.URL ||
		a.Price != b.Price || a.Description != b.Description || a.ShortDescription != b.ShortDescription {
		return false
	}
	if len(a.Categories) != len(b.Categories) {
		return false
	}
	for i := range a.Categories {
		if a.Categories[i] != b.Categories[i] {
			return false
		}
	}
	if len(a.Images) != len(b.Images) {
		return false
	}
	for i := range a.Images {
		if a.Images[i] != b.Images[i] {
			return false
		}
	}
	if len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for k, v := range a.Attributes {
		if b.Attributes[k] != v {
			return false
		}
	}
	return true
}

func equalCategory(a, b catalog.Category) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Slug == b.Slug &&
		a.Parent == b.Parent && a.Count == b.Count
}
