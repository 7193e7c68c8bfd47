package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Level is the learner level factored into cache versions.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hagwon_cache_hits_total",
		Help: "Generated-artifact cache hits.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hagwon_cache_misses_total",
		Help: "Generated-artifact cache misses.",
	})
)

func levelOffset(level Level) int {
	switch level {
	case LevelIntermediate:
		return 100
	case LevelAdvanced:
		return 200
	default:
		return 0
	}
}

// Key identifies one cached artifact. Version folds learner progress and
// level into the key, so crossing a progress quantum naturally misses.
type Key struct {
	ScopeID   string
	Signature string
	Level     Level
	Version   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s_%d", k.ScopeID, k.Signature, k.Level, k.Version)
}

type entry[T any] struct {
	key       Key
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL cache with a hard capacity. Values are stored
// as JSON, so callers always get an independent copy back.
type Cache[T any] struct {
	mu       sync.Mutex
	entries  map[string]entry[T]
	ttl      time.Duration
	capacity int
	quantum  int
	now      func() time.Time
}

// New creates a cache. quantum is the progress step that bumps versions;
// now is injectable for tests and defaults to time.Now.
func New[T any](ttl time.Duration, capacity, quantum int, now func() time.Time) *Cache[T] {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if capacity <= 0 {
		capacity = 50
	}
	if quantum <= 0 {
		quantum = 25
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{
		entries:  make(map[string]entry[T]),
		ttl:      ttl,
		capacity: capacity,
		quantum:  quantum,
		now:      now,
	}
}

// VersionFor computes the cache version for a progress percentage and level.
func (c *Cache[T]) VersionFor(progress int, level Level) int {
	return progress/c.quantum + levelOffset(level)
}

// Get returns a deep copy of the cached value. Expired entries are removed
// on access.
func (c *Cache[T]) Get(key Key) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		cacheMisses.Inc()
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key.String())
		cacheMisses.Inc()
		return zero, false
	}

	var value T
	if err := json.Unmarshal(e.value, &value); err != nil {
		delete(c.entries, key.String())
		cacheMisses.Inc()
		return zero, false
	}
	cacheHits.Inc()
	return value, true
}

// Set stores a deep copy of the value. At capacity the single oldest entry
// by creation time is evicted first.
func (c *Cache[T]) Set(key Key, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key.String()]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	now := c.now()
	c.entries[key.String()] = entry[T]{
		key:       key,
		value:     raw,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	return nil
}

func (c *Cache[T]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.createdAt.Before(oldest) {
			oldestKey = k
			oldest = e.createdAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// InvalidateScope removes every entry belonging to a scope and returns how
// many were dropped.
func (c *Cache[T]) InvalidateScope(scopeID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.key.ScopeID == scopeID {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// InvalidateOnLevelCrossing drops a scope's entries only when the progress
// change crosses a quantum boundary. Returns whether invalidation happened.
func (c *Cache[T]) InvalidateOnLevelCrossing(scopeID string, oldProgress, newProgress int) bool {
	if oldProgress/c.quantum == newProgress/c.quantum {
		return false
	}
	c.InvalidateScope(scopeID)
	return true
}

// CleanupExpired removes every expired entry and returns how many were
// dropped.
func (c *Cache[T]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// StartSweeper runs CleanupExpired on a ticker until the context ends.
func (c *Cache[T]) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupExpired()
			}
		}
	}()
}

// Clear drops everything.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
}

// StatsEntry describes one live cache entry.
type StatsEntry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stats is a read-only snapshot of the cache contents.
type Stats struct {
	Size    int          `json:"size"`
	Entries []StatsEntry `json:"entries"`
}

// Stats snapshots the cache without mutating it.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{Size: len(c.entries)}
	for k, e := range c.entries {
		stats.Entries = append(stats.Entries, StatsEntry{
			Key:       k,
			CreatedAt: e.createdAt,
			ExpiresAt: e.expiresAt,
		})
	}
	return stats
}
