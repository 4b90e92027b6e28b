// Package cache provides an optional Redis-backed cache for computed project
// health scores. A nil cache is valid and degrades to recomputation.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/workmesh/workledger/pkg/logger"
)

// DefaultTTL bounds how stale a cached health score may be.
const DefaultTTL = 5 * time.Minute

// HealthCache stores project health scores keyed by project ID and version.
// Keying on the version means a project update naturally invalidates the
// cached score without an explicit delete.
type HealthCache struct {
	client *redis.Client
	log    *logger.Logger
	ttl    time.Duration
}

// NewHealthCache connects to Redis at addr. An empty addr returns nil, which
// every method treats as a cache miss.
func NewHealthCache(addr, password string, db int, log *logger.Logger) *HealthCache {
	if addr == "" {
		return nil
	}
	if log == nil {
		log = logger.NewDefault("cache")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &HealthCache{client: client, log: log, ttl: DefaultTTL}
}

func (c *HealthCache) key(projectID string, version int64) string {
	return "workledger:health:" + projectID + ":" + strconv.FormatInt(version, 10)
}

// Get returns the cached score for the project at the given version.
func (c *HealthCache) Get(ctx context.Context, projectID string, version int64) (int, bool) {
	if c == nil {
		return 0, false
	}
	raw, err := c.client.Get(ctx, c.key(projectID, version)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Debug("health cache read failed")
		}
		return 0, false
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return score, true
}

// Set stores the score. Write failures are logged and ignored; the cache is
// never allowed to fail a read path.
func (c *HealthCache) Set(ctx context.Context, projectID string, version int64, score int) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, c.key(projectID, version), strconv.Itoa(score), c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("health cache write failed")
	}
}

// Ping verifies connectivity, for startup checks.
func (c *HealthCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *HealthCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
