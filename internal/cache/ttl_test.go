package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(ttls map[string]time.Duration) (*TTLCache, *time.Time) {
	c := New(ttls)
	now := time.Now()
	c.Now = func() time.Time { return now }
	return c, &now
}

func TestGetReturnsValueBeforeTTL(t *testing.T) {
	c, now := newTestCache(map[string]time.Duration{"settings": 90 * time.Second})

	c.Set("settings", "tenant-1", "value")

	*now = now.Add(90*time.Second - time.Millisecond)
	val, ok := c.Get("settings", "tenant-1")
	assert.True(t, ok)
	assert.Equal(t, "value", val)
}

func TestGetReportsMissAfterTTL(t *testing.T) {
	c, now := newTestCache(map[string]time.Duration{"settings": 90 * time.Second})

	c.Set("settings", "tenant-1", "value")

	*now = now.Add(90*time.Second + time.Millisecond)
	_, ok := c.Get("settings", "tenant-1")
	assert.False(t, ok)
}

func TestCachedNilIsDistinctFromMiss(t *testing.T) {
	c, _ := newTestCache(nil)

	_, ok := c.Get("settings", "tenant-1")
	assert.False(t, ok, "absent key must be a miss")

	c.Set("settings", "tenant-1", nil)
	val, ok := c.Get("settings", "tenant-1")
	assert.True(t, ok, "stored nil must be a hit")
	assert.Nil(t, val)
}

func TestInvalidateRemovesMatchingKeys(t *testing.T) {
	c, _ := newTestCache(nil)

	c.Set("history", "tenant-1:alice", []string{"hi"})
	c.Set("history", "tenant-1:bob", []string{"yo"})
	c.Set("history", "tenant-2:alice", []string{"hey"})
	c.Set("settings", "tenant-1", "cfg")

	removed := c.Invalidate("tenant-1")
	assert.Equal(t, 3, removed)

	_, ok := c.Get("history", "tenant-2:alice")
	assert.True(t, ok)
}

func TestSweepEvictsEntriesOlderThanMaxTTL(t *testing.T) {
	c, now := newTestCache(map[string]time.Duration{
		"settings": 90 * time.Second,
		"rag":      5 * time.Minute,
	})

	c.Set("settings", "old", "x")
	*now = now.Add(4 * time.Minute)
	c.Set("settings", "fresh", "y")

	*now = now.Add(90 * time.Second) // "old" is now past the 5m max TTL
	c.sweep()

	assert.Equal(t, 1, c.Len())
}
