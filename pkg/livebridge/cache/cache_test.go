package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bakarr/livebridge/pkg/livebridge/events"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	c, err := New().WithLogger(zaptest.NewLogger(t)).Build()
	require.NoError(t, err)
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t)

	c.Set(events.AnimeKey(7), "seven")

	value, ok := c.Get(events.AnimeKey(7))
	require.True(t, ok)
	assert.Equal(t, "seven", value)

	_, ok = c.Get(events.AnimeKey(8))
	assert.False(t, ok)
}

func TestCacheSetReplaces(t *testing.T) {
	c := newTestCache(t)

	c.Set(events.AnimeKey(7), "old")
	c.Set(events.AnimeKey(7), "new")

	value, _ := c.Get(events.AnimeKey(7))
	assert.Equal(t, "new", value)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidatePrefixLaw(t *testing.T) {
	c := newTestCache(t)

	c.Set(events.AnimeKey(7), "anime 7")
	c.Set(events.EpisodesKey(7), "episodes 7")
	c.Set(events.AnimeKey(8), "anime 8")
	c.Set(events.EpisodesKey(8), "episodes 8")

	require.NoError(t, c.Invalidate(context.Background(), events.AnimeKey(7)))

	_, ok := c.Get(events.AnimeKey(7))
	assert.False(t, ok, "anime/7 itself should be invalidated")

	_, ok = c.Get(events.EpisodesKey(7))
	assert.False(t, ok, "anime/7/episodes should be invalidated with its parent")

	_, ok = c.Get(events.AnimeKey(8))
	assert.True(t, ok, "anime/8 must not be touched")

	_, ok = c.Get(events.EpisodesKey(8))
	assert.True(t, ok, "anime/8/episodes must not be touched")
}

func TestInvalidateRootKey(t *testing.T) {
	c := newTestCache(t)

	c.Set(events.AnimeListKey(), "list")
	c.Set(events.AnimeKey(1), "one")
	c.Set(events.EpisodesKey(2), "two")
	c.Set(events.CacheKey{"calendar"}, "calendar")

	require.NoError(t, c.Invalidate(context.Background(), events.AnimeListKey()))

	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(events.CacheKey{"calendar"})
	assert.True(t, ok, "sibling hierarchies survive a root invalidation")
}

func TestInvalidateNoSiblingPrefixConfusion(t *testing.T) {
	c := newTestCache(t)

	// "anime/4" must not match "anime/42".
	c.Set(events.AnimeKey(4), "four")
	c.Set(events.AnimeKey(42), "forty-two")

	require.NoError(t, c.Invalidate(context.Background(), events.AnimeKey(4)))

	_, ok := c.Get(events.AnimeKey(42))
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidateMissingKeyIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	assert.NoError(t, c.Invalidate(context.Background(), events.AnimeKey(99)))
}

func TestMaxAgeExpiry(t *testing.T) {
	c, err := New().
		WithLogger(zaptest.NewLogger(t)).
		WithMaxAge(10 * time.Millisecond).
		Build()
	require.NoError(t, err)

	c.Set(events.AnimeKey(1), "fresh")

	_, ok := c.Get(events.AnimeKey(1))
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get(events.AnimeKey(1))
	assert.False(t, ok, "expired entries are invisible to Get")

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestSweepWithoutMaxAgeIsNoop(t *testing.T) {
	c := newTestCache(t)

	c.Set(events.AnimeKey(1), "kept")
	assert.Equal(t, 0, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestBuilderValidation(t *testing.T) {
	t.Run("sweep schedule without max age", func(t *testing.T) {
		_, err := New().WithSweepSchedule("@every 1m").Build()
		assert.Error(t, err)
	})

	t.Run("invalid sweep schedule", func(t *testing.T) {
		_, err := New().
			WithMaxAge(time.Minute).
			WithSweepSchedule("not a schedule").
			Build()
		assert.Error(t, err)
	})

	t.Run("janitor starts and stops", func(t *testing.T) {
		c, err := New().
			WithLogger(zaptest.NewLogger(t)).
			WithMaxAge(time.Minute).
			WithSweepSchedule("@every 1h").
			Build()
		require.NoError(t, err)

		c.Stop()
		c.Stop() // idempotent
	})
}
