package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/appinv/internal/infrastructure/config"
)

// NewStore creates the token store selected by cfg.Auth.Store.
// A redis store falls back to memory when Redis is unreachable and
// cfg.Auth.AllowMemoryFallback is set.
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Auth.Store {
	case config.StoreMemory:
		logger.Debug("using in-memory token store")
		return NewMemoryStore(), nil

	case config.StoreFile:
		logger.Debug("using file token store", zap.String("path", cfg.Auth.FilePath))
		return NewFileStore(cfg.Auth.FilePath, cfg.Auth.Passphrase), nil

	case config.StoreRedis:
		store, err := NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			DeviceID: cfg.Auth.DeviceID,
		})
		if err == nil {
			logger.Info("using Redis token store", zap.String("addr", cfg.Redis.Addr()))
			return store, nil
		}
		if !cfg.Auth.AllowMemoryFallback {
			return nil, err
		}
		logger.Warn("Redis unavailable, falling back to in-memory token store. "+
			"The session will not survive a restart.",
			zap.Error(err),
		)
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Auth.Store)
	}
}
