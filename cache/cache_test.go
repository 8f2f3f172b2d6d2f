package cache

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-markers/markers"
)

func TestKeyIsStableAndSeparatesParts(t *testing.T) {
	audio := []byte("audio bytes")

	k1 := Key(audio, "full", "en")
	k2 := Key(audio, "full", "en")
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, keyPrefix))
	assert.Len(t, k1, len(keyPrefix)+64)

	assert.NotEqual(t, k1, Key(audio, "fast", "en"))
	assert.NotEqual(t, Key(audio, "ab", "c"), Key(audio, "a", "bc"))
	assert.NotEqual(t, k1, Key([]byte("other bytes"), "full", "en"))
}

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       "unreachable:6379",
		MaxRetries: -1,
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errors.New("dial refused")
		},
	})
}

func TestRedisCacheSurfacesConnectionErrors(t *testing.T) {
	c := NewRedisCache(unreachableClient(), time.Minute)
	defer c.Close()

	result, hit, err := c.Get(context.Background(), Key([]byte("x")))
	assert.Error(t, err)
	assert.False(t, hit)
	assert.Nil(t, result)

	err = c.Set(context.Background(), Key([]byte("x")), &markers.AnalysisResult{Key: "C major"})
	assert.Error(t, err)
}

func TestConnectRedisFailsFast(t *testing.T) {
	_, err := ConnectRedis(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
