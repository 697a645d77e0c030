package apikey

import (
	"context"
	"fmt"

	"github.com/go-redis/redis"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
)

// RedisKeyStore reads API keys from a redis hash of key -> user id.
type RedisKeyStore struct {
	client *redis.Client
	hash   string
}

func NewRedisKeyStore(client *redis.Client, hash string) *RedisKeyStore {
	return &RedisKeyStore{client: client, hash: hash}
}

// LookupKey implements user.KeyStore.
func (r *RedisKeyStore) LookupKey(ctx context.Context, key string) (string, error) {
	uid, err := r.client.WithContext(ctx).HGet(r.hash, key).Result()
	if err == redis.Nil {
		return "", user.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis hget %s: %w", r.hash, err)
	}
	if uid == "" {
		return "", user.ErrKeyNotFound
	}
	return uid, nil
}

// Issue binds key to userID.
func (r *RedisKeyStore) Issue(ctx context.Context, key, userID string) error {
	return r.client.WithContext(ctx).HSet(r.hash, key, userID).Err()
}

// Revoke removes key.
func (r *RedisKeyStore) Revoke(ctx context.Context, key string) error {
	return r.client.WithContext(ctx).HDel(r.hash, key).Err()
}
