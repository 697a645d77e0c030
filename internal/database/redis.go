package database

import (
	"fmt"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
)

// NewRedis connects to redis. An empty address means redis is not used and
// yields a nil client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}
