package cache

import (
	"context"
	"testing"

	"github.com/dujiao-next/checkout/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	require.NoError(t, InitRedis(&config.RedisConfig{Enabled: false}))
	assert.False(t, Enabled())
	assert.Nil(t, Client())

	ids, hit, err := GetCategoryDescendants(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, ids)
	assert.NoError(t, SetCategoryDescendants(context.Background(), 3, []uint{4, 5}))
	assert.NoError(t, Ping(context.Background()))
}

func TestBuildKeyUsesPrefix(t *testing.T) {
	UseClient(nil, "")
	assert.Equal(t, "ck:category:descendants:7", buildKey(categoryDescendantsKey(7)))
	assert.Equal(t, "ck", buildKey(" "))
}
