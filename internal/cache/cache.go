package cache

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache is a process-local TTL cache for derived read models. Values are
// stored JSON-encoded so every reader decodes into its own copy and can
// never mutate a cached entry in place. Constructed once at bootstrap and
// injected; entries expire via TTL or are dropped by explicit invalidation.
type Cache struct {
	items *ttlcache.Cache[string, []byte]
}

func New() *Cache {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &Cache{items: items}
}

// GetJSON decodes the cached value for key into out. Returns false on miss
// or expired entry.
func (c *Cache) GetJSON(key string, out any) bool {
	item := c.items.Get(key)
	if item == nil {
		return false
	}
	if err := json.Unmarshal(item.Value(), out); err != nil {
		c.items.Delete(key)
		return false
	}
	return true
}

// SetJSON stores v under key for ttl. Unencodable values are dropped rather
// than poisoning the cache.
func (c *Cache) SetJSON(key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.items.Set(key, data, ttl)
}

func (c *Cache) Delete(key string) {
	c.items.Delete(key)
}

// DeletePrefix drops every entry whose key starts with prefix.
func (c *Cache) DeletePrefix(prefix string) {
	for _, key := range c.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
		}
	}
}

// Len reports live entries, expired ones included until cleanup runs.
func (c *Cache) Len() int { return c.items.Len() }

func (c *Cache) Stop() { c.items.Stop() }
