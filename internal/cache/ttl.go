package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache namespaces. Each namespace has its own TTL; the composite key is
// "<namespace>:<key>" so Invalidate can match on substrings.
const (
	NamespaceSettings  = "settings"
	NamespaceRAG       = "rag"
	NamespaceDashboard = "dashboard"
	NamespaceHistory   = "history"
)

const (
	sweepInterval = 60 * time.Second
	defaultTTL    = 60 * time.Second
)

// DefaultTTLs returns the per-namespace TTL configuration.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		NamespaceSettings:  90 * time.Second,
		NamespaceRAG:       5 * time.Minute,
		NamespaceDashboard: 60 * time.Second,
		NamespaceHistory:   30 * time.Second,
	}
}

type entry struct {
	value    interface{}
	storedAt time.Time
}

// TTLCache is a namespaced in-process cache. A stored nil is a valid cached
// value, distinct from a miss. Best effort only: callers must recompute on
// a miss.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttls    map[string]time.Duration
	maxTTL  time.Duration
	stop    chan struct{}
	once    sync.Once

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

func New(ttls map[string]time.Duration) *TTLCache {
	if ttls == nil {
		ttls = DefaultTTLs()
	}

	maxTTL := defaultTTL
	for _, ttl := range ttls {
		if ttl > maxTTL {
			maxTTL = ttl
		}
	}

	return &TTLCache{
		entries: make(map[string]entry),
		ttls:    ttls,
		maxTTL:  maxTTL,
		stop:    make(chan struct{}),
		Now:     time.Now,
	}
}

// Get returns the cached value for namespace/key. The second return is false
// when the entry is absent or expired.
func (c *TTLCache) Get(namespace, key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[namespace+":"+key]
	if !ok {
		return nil, false
	}
	if c.Now().Sub(e.storedAt) >= c.ttl(namespace) {
		return nil, false
	}
	return e.value, true
}

func (c *TTLCache) Set(namespace, key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[namespace+":"+key] = entry{value: value, storedAt: c.Now()}
}

// Invalidate removes every entry whose composite key contains pattern and
// returns the number removed. Callers invalidate per conversation or per
// tenant, not per exact key.
func (c *TTLCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartSweep launches the background eviction loop. Entries older than the
// maximum configured TTL are dropped, bounding growth from abandoned keys.
func (c *TTLCache) StartSweep() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *TTLCache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *TTLCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.maxTTL {
			delete(c.entries, key)
		}
	}
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTLCache) ttl(namespace string) time.Duration {
	if ttl, ok := c.ttls[namespace]; ok {
		return ttl
	}
	return defaultTTL
}
