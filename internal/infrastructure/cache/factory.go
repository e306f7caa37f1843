package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/shared"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/config"
)

// NewIdempotencyStore builds the store selected by payment.idempotency_mode.
// In redis mode an unreachable server falls back to memory unless the
// environment is production.
func NewIdempotencyStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Payment.IdempotencyMode != "redis" {
		logger.Info("Using in-memory idempotency store")
		return NewMemoryStore(), nil
	}

	client, err := NewRedisClient(ctx, cfg.Redis)
	if err == nil {
		logger.Info("Using Redis idempotency store",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port))
		return NewRedisStore(client, DefaultKeyPrefix), nil
	}

	if cfg.App.Env == "production" {
		return nil, fmt.Errorf("redis required for idempotency: %w", err)
	}
	logger.Warn("Redis unavailable, falling back to in-memory idempotency store", zap.Error(err))
	return NewMemoryStore(), nil
}
