package render

import (
	"fmt"
	"sync"

	"stash/internal/server/cachekey"
)

// Cache memoizes rendered output per cache key for the process lifetime.
// The key space is tiny (layouts x crawler flag), so entries are never
// evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[cachekey.Key][]byte
}

// NewCache creates an empty render cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cachekey.Key][]byte)}
}

// Get returns the memoized output for key, if any.
func (c *Cache) Get(key cachekey.Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.entries[key]
	return body, ok
}

// Put memoizes rendered output for key.
func (c *Cache) Put(key cachekey.Key, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = body
}

// LandingPage renders the landing page for the given key. The Text layout
// keeps markup to a bare minimum for text-oriented browsers.
func LandingPage(key cachekey.Key) []byte {
	if key.Layout == cachekey.LayoutText {
		return []byte("<html><body><h1>stash</h1>" +
			"<p>POST /api/uploads to store files, GET /api/uploads/{id} to retrieve them.</p>" +
			"</body></html>\n")
	}
	return []byte(fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>stash</title></head>
<body>
<h1>stash</h1>
<p>Authenticated upload holding area.</p>
<ul>
<li><code>POST /api/uploads</code> &mdash; multipart upload (Basic auth)</li>
<li><code>GET /api/uploads/{id}</code> &mdash; retrieve your upload</li>
<li><code>GET /api/uploads/{id}/info</code> &mdash; upload metadata</li>
</ul>
<p><small>layout: %s</small></p>
</body>
</html>
`, key.Layout))
}
