package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	dedupeKeyPrefix = "webhook:"
	dedupeTTL       = 24 * time.Hour
)

type Deduper interface {
	// FirstSeen records key and reports whether it was new.
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type RedisDeduper struct {
	rdb *redis.Client
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupeKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, dedupeKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to forget webhook %s: %w", key, err)
	}
	return nil
}
