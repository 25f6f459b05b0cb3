// api/internal/store/report_cache.go
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"questmetrics/api/database"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ReportCache holds computed analysis responses in Redis for a short TTL.
// A full batch scan plus tree rebuild is not incremental, so identical
// requests inside the TTL are served from cache; this is the server-side
// counterpart of the dashboard's debounce. A nil *ReportCache is a valid
// no-op cache, and any Redis failure degrades to recomputation.
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReportCache(client *database.RedisClient, ttl time.Duration) *ReportCache {
	if client == nil {
		return nil
	}
	return &ReportCache{rdb: client.Client, ttl: ttl}
}

// Key derives the cache key from the route and the raw request body, so
// any change to the funnel, settings or date range misses.
func (c *ReportCache) Key(route string, body []byte) string {
	sum := sha256.Sum256(append([]byte(route+"|"), body...))
	return "report:" + hex.EncodeToString(sum[:])
}

func (c *ReportCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("report cache read failed")
		}
		return nil, false
	}
	return payload, true
}

func (c *ReportCache) Set(ctx context.Context, key string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("report cache write failed")
	}
}
