package cache

import (
	"fmt"

	"github.com/storefront/analytics/internal/domain/shared"
	"github.com/storefront/analytics/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewIdempotencyStore builds the store named by cfg.Idempotency.Backend.
// The redis backend fails hard when Redis is unreachable: an operator who
// configured shared state should not silently run with per-process state
func NewIdempotencyStore(cfg *config.Config, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.Idempotency.Backend {
	case "redis":
		store, err := NewRedisIdempotencyStore(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("create redis idempotency store: %w", err)
		}
		logger.Info("using redis idempotency store", zap.String("addr", cfg.Redis.Addr()))
		return store, nil
	case "memory":
		logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.Idempotency.Backend)
	}
}
