package apikey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
)

func TestLookupUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  0,
	})
	defer client.Close()

	store := NewRedisKeyStore(client, "gateway:api_keys")
	_, err := store.LookupKey(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, user.ErrKeyNotFound))
}
