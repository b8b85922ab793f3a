// Package configcache holds the time-bounded tenant-config copies that shield
// the login path from the backing store. Every operation is best-effort: a
// cache failure degrades to a store read, it never aborts a request.
package configcache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"authgate/pkg/tenants"
)

const keyPrefix = "tenant:cfg:"

// Cache is the config-cache contract. Get returns (nil, false) on miss or on
// any cache-layer failure.
type Cache interface {
	Get(ctx context.Context, appID string) (*tenants.App, bool)
	Put(ctx context.Context, app tenants.App, ttl time.Duration)
	Invalidate(ctx context.Context, appID string)
}

type redisCache struct {
	cli *redis.Client
	log *zap.SugaredLogger
}

// NewRedis builds a Redis-backed config cache (JSON values).
func NewRedis(cli *redis.Client, log *zap.SugaredLogger) Cache {
	return &redisCache{cli: cli, log: log}
}

func (c *redisCache) Get(ctx context.Context, appID string) (*tenants.App, bool) {
	raw, err := c.cli.Get(ctx, keyPrefix+appID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warnw("config cache get", "app", appID, "err", err)
		}
		return nil, false
	}
	var app tenants.App
	if err := json.Unmarshal(raw, &app); err != nil {
		c.log.Warnw("config cache decode", "app", appID, "err", err)
		return nil, false
	}
	return &app, true
}

func (c *redisCache) Put(ctx context.Context, app tenants.App, ttl time.Duration) {
	raw, err := json.Marshal(app)
	if err != nil {
		c.log.Warnw("config cache encode", "app", app.ID, "err", err)
		return
	}
	if err := c.cli.Set(ctx, keyPrefix+app.ID, raw, ttl).Err(); err != nil {
		c.log.Warnw("config cache put", "app", app.ID, "err", err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, appID string) {
	if err := c.cli.Del(ctx, keyPrefix+appID).Err(); err != nil {
		c.log.Warnw("config cache invalidate", "app", appID, "err", err)
	}
}

type memCache struct {
	c *gocache.Cache
}

// NewMemory builds an in-process config cache for dev and tests.
func NewMemory() Cache {
	return &memCache{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *memCache) Get(ctx context.Context, appID string) (*tenants.App, bool) {
	if v, ok := m.c.Get(appID); ok {
		app := v.(tenants.App)
		return &app, true
	}
	return nil, false
}

func (m *memCache) Put(ctx context.Context, app tenants.App, ttl time.Duration) {
	m.c.Set(app.ID, app, ttl)
}

func (m *memCache) Invalidate(ctx context.Context, appID string) {
	m.c.Delete(appID)
}
