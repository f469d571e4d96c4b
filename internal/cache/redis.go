package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// staleRetention bounds how long a value stays available for stale fallback.
const staleRetention = 24 * time.Hour

type redisEntry[T any] struct {
	Value    T         `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

// Redis is a Cache shared between instances. Redis errors are logged and
// treated as misses; a cache outage never fails the caller.
type Redis[T any] struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedis[T any](rdb *redis.Client, prefix string, ttl time.Duration) *Redis[T] {
	return &Redis[T]{rdb: rdb, prefix: prefix + ":", ttl: ttl, now: time.Now}
}

func (r *Redis[T]) load(ctx context.Context, key string) (redisEntry[T], bool) {
	var e redisEntry[T]
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("redis cache get %s: %v", key, err)
		}
		return e, false
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Warnf("redis cache decode %s: %v", key, err)
		return e, false
	}
	return e, true
}

func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool) {
	e, ok := r.load(ctx, key)
	if !ok || r.now().Sub(e.StoredAt) >= r.ttl {
		var zero T
		return zero, false
	}
	return e.Value, true
}

func (r *Redis[T]) GetStale(ctx context.Context, key string) (T, bool) {
	e, ok := r.load(ctx, key)
	return e.Value, ok
}

func (r *Redis[T]) Set(ctx context.Context, key string, value T) {
	raw, err := json.Marshal(redisEntry[T]{Value: value, StoredAt: r.now()})
	if err != nil {
		log.Warnf("redis cache encode %s: %v", key, err)
		return
	}
	if err := r.rdb.Set(ctx, r.prefix+key, raw, staleRetention).Err(); err != nil {
		log.Warnf("redis cache set %s: %v", key, err)
	}
}

func (r *Redis[T]) DeletePrefix(ctx context.Context, prefix string) {
	iter := r.rdb.Scan(ctx, 0, r.prefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Warnf("redis cache scan %s: %v", prefix, err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Warnf("redis cache delete %s: %v", prefix, err)
	}
}
