package usage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters is the windowed-counter primitive underneath the ledger. Absent
// keys read as zero; increments carry the window-end expiry so the counter
// dies with its window.
type Counters interface {
	Get(ctx context.Context, key string) (int64, error)
	IncrWithExpiry(ctx context.Context, key string, expireAt time.Time) error
}

type redisCounters struct {
	cli *redis.Client
}

// NewRedisCounters uses INCR + EXPIREAT in one pipeline, so concurrent
// successful logins for the same owner cannot lose updates.
func NewRedisCounters(cli *redis.Client) Counters {
	return &redisCounters{cli: cli}
}

func (r *redisCounters) Get(ctx context.Context, key string) (int64, error) {
	n, err := r.cli.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (r *redisCounters) IncrWithExpiry(ctx context.Context, key string, expireAt time.Time) error {
	pipe := r.cli.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireAt(ctx, key, expireAt)
	_, err := pipe.Exec(ctx)
	return err
}

type memCounters struct {
	mu  sync.Mutex
	m   map[string]memCounter
	now func() time.Time
}

type memCounter struct {
	n   int64
	exp time.Time
}

// NewMemoryCounters is the dev/test counter store; a mutex serializes
// increments.
func NewMemoryCounters() Counters {
	return &memCounters{m: map[string]memCounter{}, now: time.Now}
}

func (c *memCounters) Get(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || c.now().After(e.exp) {
		return 0, nil
	}
	return e.n, nil
}

func (c *memCounters) IncrWithExpiry(ctx context.Context, key string, expireAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || c.now().After(e.exp) {
		e = memCounter{}
	}
	e.n++
	e.exp = expireAt
	c.m[key] = e
	return nil
}
