// Package cachekey computes the per-request key under which rendered output
// may be memoized. Two requests with equal keys are guaranteed to render the
// same output, so callers look up a previously rendered artifact by the key
// and only re-render on a miss.
package cachekey

import (
	"hash/fnv"
	"strings"
)

// Built-in layout names.
const (
	LayoutDefault = "Default"
	LayoutText    = "Text"
)

// Key identifies one distinct rendered output per request class: the
// effective page layout plus whether the client is a recognized search
// engine crawler. Equality is structural; the type is comparable and usable
// directly as a map key.
type Key struct {
	Layout       string
	SearchEngine bool
}

// Compute derives the key for a request. An explicit layout override wins;
// otherwise text-oriented clients get the Text layout and everyone else the
// default.
func Compute(layoutOverride, userAgent string) Key {
	layout := layoutOverride
	if layout == "" {
		if IsTextClient(userAgent) {
			layout = LayoutText
		} else {
			layout = LayoutDefault
		}
	}
	return Key{
		Layout:       layout,
		SearchEngine: IsSearchEngine(userAgent),
	}
}

// Hash spreads keys across buckets. The crawler flag negates the layout
// hash purely to separate crawler and non-crawler values; equality never
// depends on it.
func (k Key) Hash() int32 {
	h := fnv.New32a()
	h.Write([]byte(k.Layout))
	v := int32(h.Sum32())
	if k.SearchEngine {
		return -v
	}
	return v
}

// IsTextClient reports whether the user agent belongs to a text-oriented
// browser.
func IsTextClient(userAgent string) bool {
	return strings.Contains(strings.ToLower(userAgent), "lynx") ||
		strings.HasPrefix(userAgent, "BlackBerry")
}

var crawlerMarkers = []string{
	"googlebot",
	"bingbot",
	"slurp",
	"duckduckbot",
	"baiduspider",
	"yandexbot",
	"crawler",
	"spider",
}

// IsSearchEngine reports whether the user agent identifies a known search
// engine crawler.
func IsSearchEngine(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range crawlerMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
