package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erp/appinv/internal/domain/identity"
)

// RedisStore keeps the session in Redis so several client processes on one
// device share it. Keys: <prefix><device>:token and <prefix><device>:user.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisOptions holds the connection settings of a RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	DeviceID string
}

const defaultRedisKeyPrefix = "appinv:session:"

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %v", ErrStoreUnavailable, err)
	}

	return NewRedisStoreWithClient(client, opts.DeviceID), nil
}

// NewRedisStoreWithClient creates a store with an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, deviceID string) *RedisStore {
	if deviceID == "" {
		deviceID = "default"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: defaultRedisKeyPrefix + deviceID + ":",
	}
}

func (s *RedisStore) tokenKey() string { return s.keyPrefix + "token" }
func (s *RedisStore) userKey() string  { return s.keyPrefix + "user" }

func (s *RedisStore) GetToken(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.tokenKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) SaveToken(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.tokenKey(), token, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearToken(ctx context.Context) error {
	if err := s.client.Del(ctx, s.tokenKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

func (s *RedisStore) GetUser(ctx context.Context) (*identity.Usuario, error) {
	raw, err := s.client.Get(ctx, s.userKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var user identity.Usuario
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

func (s *RedisStore) SaveUser(ctx context.Context, user *identity.Usuario) error {
	if user == nil {
		return s.ClearUser(ctx)
	}
	raw, err := json.Marshal(cloneUser(user))
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.client.Set(ctx, s.userKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearUser(ctx context.Context) error {
	if err := s.client.Del(ctx, s.userKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear user: %w", err)
	}
	return nil
}

// ClearAll deletes both keys in one round trip
func (s *RedisStore) ClearAll(ctx context.Context) error {
	if err := s.client.Del(ctx, s.tokenKey(), s.userKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
