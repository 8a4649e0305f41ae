package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/storefront/analytics/internal/infrastructure/config"
)

const defaultKeyPrefix = "analytics:envelope:"

// RedisIdempotencyStore implements shared.IdempotencyStore on Redis so
// multiple collector instances share duplicate-suppression state
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisIdempotencyStore connects to Redis and verifies the connection
func NewRedisIdempotencyStore(cfg config.RedisConfig) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}, nil
}

// NewRedisIdempotencyStoreWithClient wraps an existing client. Useful for
// testing or sharing a client across components
func NewRedisIdempotencyStoreWithClient(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// MarkProcessed marks an envelope as processed with a TTL. SETNX makes the
// mark-and-check a single atomic operation
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, envelopeID string, ttl time.Duration) (bool, error) {
	newlyMarked, err := s.client.SetNX(ctx, s.keyPrefix+envelopeID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark envelope processed: %w", err)
	}
	return newlyMarked, nil
}

// IsProcessed reports whether an envelope has already been processed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, envelopeID string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keyPrefix+envelopeID).Result()
	if err != nil {
		return false, fmt.Errorf("check envelope processed: %w", err)
	}
	return exists > 0, nil
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
