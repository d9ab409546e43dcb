package complete

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Entry is one cached directory entry.
type Entry struct {
	Name string
	Dir  bool
}

// DirCache is a TTL cache of directory listings keyed by absolute path.
// Listings are re-read after expiry so completion stays cheap on large
// or slow directories without going permanently stale.
type DirCache struct {
	cache *ttlcache.Cache[string, []Entry]
}

// NewDirCache creates a DirCache whose entries expire after ttl.
func NewDirCache(ttl time.Duration) *DirCache {
	c := ttlcache.New[string, []Entry](
		ttlcache.WithTTL[string, []Entry](ttl),
		ttlcache.WithDisableTouchOnHit[string, []Entry](),
	)
	go c.Start()
	return &DirCache{cache: c}
}

// Close stops the cache expiration loop.
func (dc *DirCache) Close() {
	dc.cache.Stop()
}

// Entries returns the listing for dir, reading it on a cache miss. The
// listing is sorted by name. A missing or unreadable directory yields
// an empty listing.
func (dc *DirCache) Entries(dir string) []Entry {
	if item := dc.cache.Get(dir); item != nil {
		return item.Value()
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		dc.cache.Set(dir, nil, ttlcache.DefaultTTL)
		return nil
	}
	listing := make([]Entry, 0, len(ents))
	for _, e := range ents {
		listing = append(listing, Entry{Name: e.Name(), Dir: e.IsDir()})
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Name < listing[j].Name })

	dc.cache.Set(dir, listing, ttlcache.DefaultTTL)
	return listing
}

// Invalidate drops the cached listing for dir, forcing a re-read on the
// next lookup. The shell calls this after commands that likely changed
// the directory.
func (dc *DirCache) Invalidate(dir string) {
	dc.cache.Delete(dir)
}

// ListingLine returns dir's entry names joined on a single line, capped
// at maxBytes. Used as context for command translation.
func (dc *DirCache) ListingLine(dir string, maxBytes int) string {
	ents := dc.Entries(dir)
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name)
	}
	joined := strings.Join(names, " ")
	if len(joined) <= maxBytes {
		return joined
	}
	return joined[:maxBytes] + "..."
}
