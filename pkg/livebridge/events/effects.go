package events

import (
	"strconv"
	"strings"
)

// Level classifies a notification for the sink that renders it.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// CacheKey identifies a group of cached query results. Keys form a prefix
// hierarchy: invalidating a key also invalidates everything nested under it.
type CacheKey []string

// Topic renders the key as a slash-joined path, the form the cache uses for
// matching ("anime/42/episodes").
func (k CacheKey) Topic() string {
	return strings.Join(k, "/")
}

// AnimeListKey is the root key covering all cached anime queries.
func AnimeListKey() CacheKey {
	return CacheKey{"anime"}
}

// AnimeKey covers one anime's cached queries and their children.
func AnimeKey(id int64) CacheKey {
	return CacheKey{"anime", strconv.FormatInt(id, 10)}
}

// EpisodesKey covers one anime's cached episode queries.
func EpisodesKey(id int64) CacheKey {
	return CacheKey{"anime", strconv.FormatInt(id, 10), "episodes"}
}

// Effect is one instruction derived from an envelope: show a notification or
// invalidate a cache key. Effects are plain values, produced and consumed
// within a single dispatch cycle.
type Effect interface {
	isEffect()
}

// Notify shows a message at the given level on the notification sink.
type Notify struct {
	Level   Level
	Message string
}

func (Notify) isEffect() {}

// Invalidate drops the cache entries under Key.
type Invalidate struct {
	Key CacheKey
}

func (Invalidate) isEffect() {}
