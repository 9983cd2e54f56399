package evidence

import (
	"sort"
	"strings"
	"sync"

	"github.com/novusai/novus/internal/domain"
)

// CacheKey identifies one evidence fetch: a drug, the condition set rendered
// order-independently, and the resolved intent.
type CacheKey struct {
	Drug         string
	ConditionKey string
	Intent       domain.Intent
}

// NewCacheKey builds a key. The condition set is lower-cased, deduplicated,
// sorted, and pipe-joined so that permutations of the same set collide.
func NewCacheKey(drug string, conditions []string, intent domain.Intent) CacheKey {
	seen := make(map[string]struct{}, len(conditions))
	uniq := make([]string, 0, len(conditions))
	for _, c := range conditions {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		uniq = append(uniq, c)
	}
	sort.Strings(uniq)

	return CacheKey{
		Drug:         strings.ToLower(strings.TrimSpace(drug)),
		ConditionKey: strings.Join(uniq, "|"),
		Intent:       intent,
	}
}

// String renders the key in drug|conditions|intent form, the shape used in
// logs and tests.
func (k CacheKey) String() string {
	return k.Drug + "|" + k.ConditionKey + "|" + string(k.Intent)
}

// Cache is the per-conversation evidence memoization table. Entries are
// write-once: once a key holds a bundle it is never replaced or invalidated
// for the lifetime of the conversation. Failed fetches are never stored.
//
// Cache is safe for concurrent use: a comparison-mode turn fetches its
// per-drug bundles in parallel against the same cache.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]*Bundle
}

// NewCache creates an empty evidence cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey]*Bundle)}
}

// Get returns the cached bundle for key, or nil if absent.
func (c *Cache) Get(key CacheKey) *Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

// Put stores a bundle under key. A key that is already present keeps its
// original bundle, so repeated lookups return byte-identical evidence.
func (c *Cache) Put(key CacheKey, b *Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = b
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
