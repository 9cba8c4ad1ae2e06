package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "soundforge:build-token:"

// RedisStore keeps tokens in Redis so multiple host instances share one
// dedup view.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromURL connects using a redis:// URL.
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	return NewRedisStore(ctx, opts.Addr, opts.Password, opts.DB)
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, token string) (string, bool, error) {
	location, err := s.client.Get(ctx, redisKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to look up build token: %w", err)
	}

	return location, true, nil
}

// Remember implements Store.
func (s *RedisStore) Remember(ctx context.Context, token, location string, ttl time.Duration) error {
	err := s.client.Set(ctx, redisKeyPrefix+token, location, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to record build token: %w", err)
	}

	return nil
}

// Close implements Store.
func (s *RedisStore) Close(_ context.Context) error {
	return s.client.Close()
}
