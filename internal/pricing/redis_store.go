package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const configKey = "pricing:config"

// RedisConfigStore keeps the pricing configuration in Redis so it can be
// changed without a redeploy.
type RedisConfigStore struct {
	redis    *redis.Client
	defaults Config
}

func NewRedisConfigStore(client *redis.Client, defaults Config) *RedisConfigStore {
	if client == nil {
		panic("pricing: redis client required")
	}
	return &RedisConfigStore{redis: client, defaults: defaults}
}

// Get returns the stored config, or the defaults when none has been saved.
func (s *RedisConfigStore) Get(ctx context.Context) (Config, error) {
	data, err := s.redis.Get(ctx, configKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.defaults, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("pricing: get config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("pricing: unmarshal config: %w", err)
	}
	return cfg, nil
}

func (s *RedisConfigStore) Set(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("pricing: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, configKey, data, 0).Err(); err != nil {
		return fmt.Errorf("pricing: set config: %w", err)
	}
	return nil
}

// StaticSource serves a fixed config; used when Redis is not configured.
type StaticSource Config

func (s StaticSource) Get(context.Context) (Config, error) { return Config(s), nil }
