package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
)

const maxCachedSearches = 256

// resultCache stores search results in the shared TTL cache under the rag
// namespace and bounds the number of live entries. When full, the
// oldest-inserted key is evicted first.
type resultCache struct {
	mu    sync.Mutex
	ttl   *cache.TTLCache
	order []string
	max   int
}

func newResultCache(ttl *cache.TTLCache) *resultCache {
	return &resultCache{ttl: ttl, max: maxCachedSearches}
}

// searchKey is stable across query formatting differences: whitespace and
// case are normalized, categories arrive pre-sorted from the classifier.
func searchKey(tenantID, query string, categories []string, limit int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	raw := fmt.Sprintf("%s|%s|%s|%d", tenantID, normalized, strings.Join(categories, ","), limit)
	sum := sha256.Sum256([]byte(raw))
	return tenantID + ":" + hex.EncodeToString(sum[:8])
}

func (c *resultCache) get(key string) ([]Chunk, bool) {
	value, ok := c.ttl.Get(cache.NamespaceRAG, key)
	if !ok {
		return nil, false
	}
	chunks, ok := value.([]Chunk)
	return chunks, ok
}

func (c *resultCache) set(key string, chunks []Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.ttl.Invalidate(cache.NamespaceRAG + ":" + oldest)
	}
	c.order = append(c.order, key)
	c.ttl.Set(cache.NamespaceRAG, key, chunks)
}

// invalidateTenant drops every cached search for the tenant. Called after
// ingestion or deletion so stale chunks never outlive their source.
func (c *resultCache) invalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ttl.Invalidate(cache.NamespaceRAG + ":" + tenantID + ":")

	kept := c.order[:0]
	for _, key := range c.order {
		if !strings.HasPrefix(key, tenantID+":") {
			kept = append(kept, key)
		}
	}
	c.order = kept
}
