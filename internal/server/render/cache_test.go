package render

import (
	"bytes"
	"testing"

	"stash/internal/server/cachekey"
)

func TestCache(t *testing.T) {
	t.Run("miss then hit", func(t *testing.T) {
		c := NewCache()
		key := cachekey.Key{Layout: cachekey.LayoutDefault}

		if _, ok := c.Get(key); ok {
			t.Fatal("expected a miss on an empty cache")
		}

		body := LandingPage(key)
		c.Put(key, body)

		got, ok := c.Get(key)
		if !ok {
			t.Fatal("expected a hit after Put")
		}
		if !bytes.Equal(got, body) {
			t.Error("expected the memoized body back")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		c := NewCache()
		c.Put(cachekey.Key{Layout: cachekey.LayoutDefault}, []byte("default"))

		if _, ok := c.Get(cachekey.Key{Layout: cachekey.LayoutText}); ok {
			t.Error("expected a miss for a different layout")
		}
		if _, ok := c.Get(cachekey.Key{Layout: cachekey.LayoutDefault, SearchEngine: true}); ok {
			t.Error("expected a miss for the crawler variant")
		}
	})
}

func TestLandingPage(t *testing.T) {
	text := LandingPage(cachekey.Key{Layout: cachekey.LayoutText})
	full := LandingPage(cachekey.Key{Layout: cachekey.LayoutDefault})

	if len(text) >= len(full) {
		t.Error("expected the text layout to be leaner than the default")
	}
	if !bytes.Contains(full, []byte("stash")) || !bytes.Contains(text, []byte("stash")) {
		t.Error("expected both layouts to name the service")
	}
}
