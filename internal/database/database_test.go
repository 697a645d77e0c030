package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xpanvictor/xarvis-gateway/internal/config"
)

func TestDisabledStoresYieldNil(t *testing.T) {
	rc, err := NewRedis(config.RedisConfig{})
	assert.NoError(t, err)
	assert.Nil(t, rc)

	db, err := InitDB(config.DBConfig{})
	assert.NoError(t, err)
	assert.Nil(t, db)
}
