// Package cache provides the in-memory query cache the bridge keeps coherent
// with server state. Entries are keyed hierarchically; invalidating a key
// also drops everything nested under it.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
	"github.com/bakarr/livebridge/pkg/livebridge/o11y"
)

type entry struct {
	value    any
	storedAt time.Time
}

// Cache is a thread-safe query-result cache with prefix invalidation.
// It satisfies the bridge's Invalidator interface.
type Cache struct {
	logger        *zap.Logger
	maxAge        time.Duration
	sweepSchedule string

	mu      sync.RWMutex
	entries map[string]entry

	janitor *cron.Cron

	invalidationCounter o11y.Counter
	entryGauge          o11y.Gauge
}

// Set stores value under key, replacing any previous entry.
func (c *Cache) Set(key events.CacheKey, value any) {
	c.mu.Lock()
	c.entries[key.Topic()] = entry{value: value, storedAt: time.Now()}
	size := len(c.entries)
	c.mu.Unlock()

	c.recordSize(size)
}

// Get returns the cached value for exactly key, if present and not expired.
func (c *Cache) Get(key events.CacheKey) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key.Topic()]
	if !ok {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(e.storedAt) > c.maxAge {
		return nil, false
	}
	return e.value, true
}

// Invalidate removes the entry for key and every entry nested under it.
// Invalidating "anime/7" drops "anime/7" and "anime/7/episodes" but leaves
// "anime/8" alone.
func (c *Cache) Invalidate(ctx context.Context, key events.CacheKey) error {
	topic := key.Topic()
	childPattern := topic + "/#"

	c.mu.Lock()
	removed := 0
	for candidate := range c.entries {
		if candidate == topic || mqttpattern.Matches(childPattern, candidate) {
			delete(c.entries, candidate)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	c.logger.Debug("Cache invalidated",
		zap.String("key", topic),
		zap.Int("removed", removed),
	)

	if c.invalidationCounter != nil {
		c.invalidationCounter.Add(ctx, 1, o11y.Label{Key: "key", Value: topic})
	}
	c.recordSize(size)

	return nil
}

// Len returns the number of live entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes entries older than the configured max age and returns how
// many were dropped. A zero max age makes Sweep a no-op.
func (c *Cache) Sweep() int {
	if c.maxAge <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-c.maxAge)

	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if e.storedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("Cache sweep", zap.Int("removed", removed))
	}
	c.recordSize(size)

	return removed
}

// Stop halts the sweep janitor, if one was scheduled. Safe to call more than
// once.
func (c *Cache) Stop() {
	if c.janitor != nil {
		c.janitor.Stop()
	}
}

func (c *Cache) recordSize(size int) {
	if c.entryGauge != nil {
		c.entryGauge.Set(context.Background(), float64(size))
	}
}
