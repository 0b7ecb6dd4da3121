// Package cache keeps tenant service catalogs in redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kartoteka/internal/availability"
	"kartoteka/internal/metrics"
	"kartoteka/internal/model"
)

const keyPrefix = "kartoteka:catalog:"

// Catalog is a read-through cache in front of a service source. Redis failures
// fall back to the source.
type Catalog struct {
	next   availability.ServiceSource
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCatalog(next availability.ServiceSource, rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Catalog {
	return &Catalog{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "catalog-cache").Logger(),
	}
}

func key(tenantID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, tenantID)
}

// ListActiveServices returns the cached catalog or loads and caches it.
func (c *Catalog) ListActiveServices(ctx context.Context, tenantID int64) ([]model.Service, error) {
	var services []model.Service
	if c.readCache(ctx, key(tenantID), &services) {
		metrics.IncCatalogCache("hit")
		return services, nil
	}
	metrics.IncCatalogCache("miss")

	services, err := c.next.ListActiveServices(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key(tenantID), services)
	return services, nil
}

// Invalidate drops the cached catalogs of the given tenants.
func (c *Catalog) Invalidate(ctx context.Context, tenantIDs ...int64) error {
	if c.redis == nil || len(tenantIDs) == 0 {
		return nil
	}
	keys := make([]string, len(tenantIDs))
	for i, id := range tenantIDs {
		keys[i] = key(id)
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate catalog: %w", err)
	}
	return nil
}

func (c *Catalog) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Catalog) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
