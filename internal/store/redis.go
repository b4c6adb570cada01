package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store that keeps records in a redis instance, JSON-encoded
// under "<prefix>:<key>". TTL bookkeeping is delegated to redis.
type Redis[V any] struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a redis-backed store. All keys are namespaced with
// prefix so several tables can share one database.
func NewRedis[V any](client redis.UniversalClient, prefix string) *Redis[V] {
	return &Redis[V]{client: client, prefix: prefix}
}

func (r *Redis[V]) key(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis[V]) Insert(ctx context.Context, key string, value V, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", key, err)
	}
	if err := r.client.Set(ctx, r.key(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("insert record %q: %w", key, err)
	}
	return nil
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, error) {
	var value V
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, ErrNotFound
	}
	if err != nil {
		return value, fmt.Errorf("get record %q: %w", key, err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("decode record %q: %w", key, err)
	}
	return value, nil
}

func (r *Redis[V]) Update(ctx context.Context, key string, value V) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", key, err)
	}
	// SET XX KEEPTTL: only overwrite a live record, leaving its deadline alone.
	ok, err := r.client.SetXX(ctx, r.key(key), encoded, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("update record %q: %w", key, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *Redis[V]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("delete record %q: %w", key, err)
	}
	return nil
}
