package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shashiranjanraj/serverkit/config"
)

const redisPrefix = "serverkit:session:"

// RedisStore keeps sessions in Redis with a TTL per key.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: redisPrefix}
}

// DialRedis connects to REDIS_ADDR and verifies the connection with a ping.
func DialRedis(ctx context.Context) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("session/redis: ping %s: %w", config.RedisAddr(), err)
	}
	return NewRedisStore(rdb), nil
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Get(ctx context.Context, id string) (map[string]any, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session/redis: get: %w", err)
	}
	return decode(raw)
}

func (s *RedisStore) Set(ctx context.Context, id string, data map[string]any, ttl time.Duration) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(id), raw, ttl).Err(); err != nil {
		return fmt.Errorf("session/redis: set: %w", err)
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("session/redis: del: %w", err)
	}
	return nil
}
