package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBlobs stores snapshots as Redis strings with an optional TTL. Keys
// are used as given; callers namespace them.
type RedisBlobs struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBlobs creates a Redis backed blob store. A zero ttl keeps keys forever.
func NewRedisBlobs(client *redis.Client, ttl time.Duration) *RedisBlobs {
	return &RedisBlobs{client: client, ttl: ttl}
}

// ConnectRedis opens a client and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisBlobs) Put(ctx context.Context, key string, data []byte) error {
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *RedisBlobs) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
