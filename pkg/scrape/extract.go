package scrape

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/w4lkr/shopsync/pkg/catalog"
)

// productSelectors are tried in order against a listing page; the first
// selector that matches anything wins. Ordered from the WooCommerce default
// theme markup down to generic microdata.
var productSelectors = []string{
	"ul.products li.product",
	"li.product",
	".products .product",
	"[itemtype*='schema.org/Product']",
}

var nameSelectors = []string{
	"h2.woocommerce-loop-product__title",
	".woocommerce-loop-product__title",
	"h2",
	"h3",
	".product-title",
}

// priceSelectors prefer the sale price (ins) over the crossed-out one.
var priceSelectors = []string{
	".price ins .woocommerce-Price-amount",
	".price .woocommerce-Price-amount",
	".price ins .amount",
	".price .amount",
	".price",
	".amount",
}

var categorySelectors = []string{
	"ul.product-categories a",
	".widget_product_categories a",
	"nav a[href*='/produkt-kategorie/']",
	"nav a[href*='/product-category/']",
}

var priceRe = regexp.MustCompile(`[0-9]+(?:[.,][0-9]{1,2})?`)

func extractItems(doc *goquery.Document, base *url.URL, syncedAt time.Time) []catalog.Item {
	var sel *goquery.Selection
	for _, q := range productSelectors {
		if s := doc.Find(q); s.Length() > 0 {
			sel = s
			break
		}
	}
	if sel == nil {
		return nil
	}

	var items []catalog.Item
	sel.Each(func(_ int, node *goquery.Selection) {
		item := catalog.Item{
			Source:   catalog.SourceScrape,
			SyncedAt: syncedAt,
		}

		if href, ok := node.Find("a[href]").First().Attr("href"); ok {
			item.URL = resolveURL(base, href)
		}
		if item.URL == "" {
			// Without a permalink there is no identity to merge on.
			return
		}
		item.Slug = slugFromURL(item.URL)

		item.Name = firstText(node, nameSelectors)
		if item.Name == "" {
			// Listing themes without a title node still encode the
			// product name in the permalink slug.
			item.Name = strings.ReplaceAll(item.Slug, "-", " ")
		}

		item.Price = extractPrice(node)

		if src, ok := node.Find("img").First().Attr("src"); ok && src != "" {
			item.Images = append(item.Images, resolveURL(base, src))
		}

		items = append(items, item)
	})
	return items
}

func extractCategories(doc *goquery.Document, base *url.URL, syncedAt time.Time) []catalog.Category {
	var sel *goquery.Selection
	for _, q := range categorySelectors {
		if s := doc.Find(q); s.Length() > 0 {
			sel = s
			break
		}
	}
	if sel == nil {
		return nil
	}

	seen := make(map[string]bool)
	var cats []catalog.Category
	sel.Each(func(_ int, node *goquery.Selection) {
		name := strings.TrimSpace(node.Text())
		if name == "" {
			return
		}
		href, _ := node.Attr("href")
		link := resolveURL(base, href)
		slug := slugFromURL(link)
		key := slug
		if key == "" {
			key = catalog.NormalizeName(name)
		}
		if seen[key] {
			return
		}
		seen[key] = true
		cats = append(cats, catalog.Category{
			Name:     name,
			Slug:     slug,
			URL:      link,
			Source:   catalog.SourceScrape,
			SyncedAt: syncedAt,
		})
	})
	return cats
}

func extractPrice(node *goquery.Selection) string {
	txt := firstText(node, priceSelectors)
	if m := priceRe.FindString(txt); m != "" {
		return m
	}
	return catalog.PriceUnavailable
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(node *goquery.Selection, selectors []string) string {
	for _, q := range selectors {
		if s := node.Find(q).First(); s.Length() > 0 {
			if txt := strings.TrimSpace(s.Text()); txt != "" {
				return txt
			}
		}
	}
	return ""
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// slugFromURL returns the last path segment of a product permalink.
func slugFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
