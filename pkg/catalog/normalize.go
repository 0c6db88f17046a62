package catalog

import (
	"net/url"
	"strings"
)

// NormalizeName folds a product or category name for identity and lookup:
// lowercased, with runs of whitespace collapsed to single spaces.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokenize splits free text into the lowercase tokens the search index is
// built on. Punctuation, hyphens and markup brackets act as separators so
// "Mozzarella, Tomate & Basilikum" and "<p>bio-mozzarella</p>" both
// tokenize cleanly.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ',', ';', ':', '.', '!', '?', '(', ')', '"', '\'', '&', '/', '-', '<', '>', '=':
			return true
		}
		return false
	})
}

// NormalizeURL applies simple canonicalization rules suitable for identity.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(s, "/"))
	}
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" && u.Port() == "80" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && u.Port() == "443" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if strings.HasSuffix(u.Path, "/") && len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Fragment = ""
	return u.String()
}
