// Package cache puts a Redis read-through cache in front of the catalog
// accessors.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiotblack/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	servicesKey      = "studiotblack:catalog:services"
	professionalsKey = "studiotblack:catalog:professionals"
)

// Catalog is the source the cache reads through to.
type Catalog interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// CachedCatalog serves ListServices and ListProfessionals from Redis and
// falls back to the wrapped catalog on a miss or a Redis failure.
type CachedCatalog struct {
	next   Catalog
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCachedCatalog(next Catalog, client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := logger.With().Str("component", "catalog_cache").Logger()
	return &CachedCatalog{next: next, client: client, ttl: ttl, logger: &l}
}

func (c *CachedCatalog) ListServices(ctx context.Context) ([]model.Service, error) {
	return readThrough(ctx, c, servicesKey, c.next.ListServices)
}

func (c *CachedCatalog) ListProfessionals(ctx context.Context) ([]model.Professional, error) {
	return readThrough(ctx, c, professionalsKey, c.next.ListProfessionals)
}

// Invalidate drops the cached lists, e.g. after a catalog sync.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, servicesKey, professionalsKey).Err(); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	return nil
}

func readThrough[T any](ctx context.Context, c *CachedCatalog, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []T
		if jsonErr := json.Unmarshal(cached, &out); jsonErr == nil {
			return out, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding unreadable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	out, err := load(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return out, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return out, nil
}
