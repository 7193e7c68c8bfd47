package websearch

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "websearch:"

// Cached wraps a Searcher with a redis cache. Entries are keyed by the
// literal query, so the same question asked twice within the TTL costs one
// provider call. Cache failures degrade to a live search.
type Cached struct {
	next   Searcher
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

func NewCached(next Searcher, rdb *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[WEBSEARCH] ", log.LstdFlags),
	}
}

func (c *Cached) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	key := cacheKeyPrefix + query

	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		var cached []Result
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			if maxResults > 0 && len(cached) > maxResults {
				cached = cached[:maxResults]
			}
			return cached, nil
		}
	} else if err != redis.Nil {
		c.logger.Printf("cache lookup failed for %q: %v", query, err)
	}

	results, err := c.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(results); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Printf("cache store failed for %q: %v", query, err)
		}
	}
	return results, nil
}
