package catalog

import (
	"fmt"
	"time"
)

// Data sources a snapshot entry can originate from.
const (
	SourceAPI    = "api"
	SourceScrape = "scrape"
	SourceCache  = "cache"
)

// PriceUnavailable is recorded when a source exposes no parsable price.
const PriceUnavailable = "unavailable"

// Item represents a single product record in a snapshot.
type Item struct {
	// ID is the store's numeric product id. Scraped items have no id and
	// carry 0; they are identified by URL instead.
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
	URL  string `json:"url,omitempty"`

	Description      string `json:"description,omitempty"`
	ShortDescription string `json:"short_description,omitempty"`

	// Price stays the raw decimal string the source sent. Parsing it into
	// a float rounds currency values.
	Price string `json:"price,omitempty"`

	Categories []CategoryRef     `json:"categories,omitempty"`
	Images     []string          `json:"images,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`

	Source   string    `json:"source"`
	SyncedAt time.Time `json:"synced_at"`
}

// CategoryRef is the category assignment embedded in an item.
type CategoryRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// Category represents a catalog category record.
type Category struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	Slug   string `json:"slug,omitempty"`
	Parent int64  `json:"parent,omitempty"`
	Count  int    `json:"count,omitempty"`

	// URL is the category's listing page. Only scraped categories carry
	// one; the structured API identifies categories by id and slug.
	URL string `json:"url,omitempty"`

	Source   string    `json:"source"`
	SyncedAt time.Time `json:"synced_at"`
}

// SyncRun is the audit record of one synchronization attempt. It is written
// once when the run finishes and never mutated afterwards.
type SyncRun struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Source        string    `json:"source"`
	ItemCount     int       `json:"items_count"`
	CategoryCount int       `json:"categories_count"`
	ErrorCount    int       `json:"error_count"`

	// UsedCachedData marks runs that served a previous snapshot because
	// every fresh source failed.
	UsedCachedData bool   `json:"used_cached_data"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// Keys returns the identity keys an item can be merged under. API items
// carry a numeric id, scraped items only a URL; both keys are returned when
// present so records from the two sources dedupe against each other.
func (it Item) Keys() []string {
	var keys []string
	if it.ID != 0 {
		keys = append(keys, fmt.Sprintf("id:%d", it.ID))
	}
	if u := NormalizeURL(it.URL); u != "" {
		keys = append(keys, "url:"+u)
	}
	return keys
}

// Key returns the primary identity key, preferring the numeric id.
func (it Item) Key() string {
	keys := it.Keys()
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// Keys returns the identity keys a category can be merged under: the
// numeric id when known, and the normalized name so scraped categories
// match API ones.
func (c Category) Keys() []string {
	var keys []string
	if c.ID != 0 {
		keys = append(keys, fmt.Sprintf("id:%d", c.ID))
	}
	if n := NormalizeName(c.Name); n != "" {
		keys = append(keys, "name:"+n)
	}
	return keys
}

// Key returns the primary category identity key, preferring the numeric id.
func (c Category) Key() string {
	keys := c.Keys()
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
