package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/appinv/internal/infrastructure/config"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.Store = config.StoreMemory

		store, err := NewStore(ctx, cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("file", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.Store = config.StoreFile
		cfg.Auth.FilePath = filepath.Join(t.TempDir(), "s.bin")

		store, err := NewStore(ctx, cfg, logger)
		require.NoError(t, err)
		fs, ok := store.(*FileStore)
		require.True(t, ok)
		assert.Equal(t, cfg.Auth.FilePath, fs.Path())
	})

	t.Run("redis unreachable without fallback", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.Store = config.StoreRedis
		cfg.Redis.Host = "127.0.0.1"
		cfg.Redis.Port = 1

		_, err := NewStore(ctx, cfg, logger)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("redis unreachable with fallback", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.Store = config.StoreRedis
		cfg.Auth.AllowMemoryFallback = true
		cfg.Redis.Host = "127.0.0.1"
		cfg.Redis.Port = 1

		store, err := NewStore(ctx, cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.Store = "keychain"

		_, err := NewStore(ctx, cfg, logger)
		assert.Error(t, err)
	})
}
